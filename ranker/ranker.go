// Package ranker turns clarity clusters into a ranked list of issues
// weighted by the high-intent sessions they put at risk.
package ranker

import (
	"fmt"
	"math"
	"sort"
	"time"

	"storepulse/api/apperr"
	"storepulse/api/models"
	"storepulse/api/utils"
)

// Views over the ranked rows.
const (
	ViewConfirmedFirst = "confirmed_first"
	ViewAllIssues      = "all_issues"
)

// Confidence labels.
const (
	LabelLow  = "Low"
	LabelMed  = "Med"
	LabelHigh = "High"
)

var severity = map[string]float64{
	models.SignalJSErrors:      1.00,
	models.SignalRageClicks:    0.92,
	models.SignalFormInvalid:   0.90,
	models.SignalDeadClicks:    0.85,
	models.SignalScrollDropoff: 0.72,
}

// SeverityWeight returns the fixed per-type weight.
func SeverityWeight(typ string) float64 { return severity[typ] }

// ParseView validates a view query value; empty means confirmed_first.
func ParseView(raw string) (string, error) {
	switch raw {
	case "", ViewConfirmedFirst:
		return ViewConfirmedFirst, nil
	case ViewAllIssues:
		return ViewAllIssues, nil
	}
	return "", apperr.Validation("ranker.view", "view must be confirmed_first or all_issues")
}

// Params for one ranking pass.
type Params struct {
	Day  string
	Now  time.Time
	View string
}

// Result holds the rows for the view and the row chosen for the summary line.
type Result struct {
	View    string
	Rows    []models.TopIssueRow
	Summary *models.TopIssueRow
}

// EligibleHighIntent counts sessions with funnel intent and no purchase.
func EligibleHighIntent(sessions []models.SessionSummary) int {
	n := 0
	for i := range sessions {
		s := &sessions[i]
		if (s.ATCEvents > 0 || s.CheckoutStartedEvents > 0 || s.PurchaseEvents > 0) && s.PurchaseEvents == 0 {
			n++
		}
	}
	return n
}

// Rank scores every cluster, applies the view and assigns ranks and
// confidence labels over the rows that remain.
func Rank(clusters []models.ClarityCluster, sessions []models.SessionSummary, p Params) Result {
	if p.View == "" {
		p.View = ViewConfirmedFirst
	}
	total := len(sessions)
	eligible := EligibleHighIntent(sessions)
	if eligible > total {
		eligible = total
	}
	recency := 1 / (1 + float64(utils.DaysBetween(p.Day, p.Now)))

	rows := make([]models.TopIssueRow, 0, len(clusters))
	raw := make([]float64, 0, len(clusters))
	maxRaw := 0.0
	for i := range clusters {
		c := &clusters[i]
		if c.SessionsAffected <= 0 {
			continue
		}
		affectedHI := c.SessionsAffected
		if affectedHI > eligible {
			affectedHI = eligible
		}
		observations := c.SessionsAffected
		if c.Count > observations {
			observations = c.Count
		}
		pHat := 0.0
		if eligible > 0 {
			pHat = float64(affectedHI+1) / float64(eligible+2)
		}
		conf := pHat * math.Log1p(float64(observations))
		if conf > maxRaw {
			maxRaw = conf
		}
		raw = append(raw, conf)

		rows = append(rows, models.TopIssueRow{
			Type:               c.Type,
			IssueLabel:         IssueLabel(c),
			WhereLabel:         WhereLabel(c.Page),
			SessionsAffected:   c.SessionsAffected,
			HighIntentAffected: affectedHI,
			VerificationStatus: c.Verification,
			ImpactScore:        float64(affectedHI) * SeverityWeight(c.Type) * recency,
			SampleSessions:     c.SampleSessions,
		})
	}

	for i := range rows {
		if maxRaw > 0 {
			rows[i].ConfidenceScore = raw[i] / maxRaw
		}
		rows[i].Score = rows[i].ImpactScore * (0.4 + 0.6*rows[i].ConfidenceScore)
	}
	sortRows(rows)

	shown := rows
	if p.View == ViewConfirmedFirst {
		shown = make([]models.TopIssueRow, 0, len(rows))
		for _, r := range rows {
			if !models.Verifiable(r.Type) || r.VerificationStatus == models.VerificationConfirmed {
				shown = append(shown, r)
			}
		}
	}
	assignLabels(shown)
	for i := range shown {
		shown[i].Rank = i + 1
	}

	res := Result{View: p.View, Rows: shown}
	switch {
	case len(shown) > 0:
		top := shown[0]
		res.Summary = &top
	case len(rows) > 0:
		one := []models.TopIssueRow{rows[0]}
		one[0].Rank = 1
		assignLabels(one)
		res.Summary = &one[0]
	}
	return res
}

func sortRows(rows []models.TopIssueRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.HighIntentAffected != b.HighIntentAffected {
			return a.HighIntentAffected > b.HighIntentAffected
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.WhereLabel != b.WhereLabel {
			return a.WhereLabel < b.WhereLabel
		}
		return a.IssueLabel < b.IssueLabel
	})
}

// assignLabels cuts the confidence scores of rows at the 34th and 67th
// percentiles.
func assignLabels(rows []models.TopIssueRow) {
	scores := make([]float64, len(rows))
	for i := range rows {
		scores[i] = rows[i].ConfidenceScore
	}
	sort.Float64s(scores)
	lo := utils.Interpolated(scores, 34)
	hi := utils.Interpolated(scores, 67)
	for i := range rows {
		s := rows[i].ConfidenceScore
		switch {
		case s <= lo:
			rows[i].ConfidenceLabel = LabelLow
		case s >= hi:
			rows[i].ConfidenceLabel = LabelHigh
		default:
			rows[i].ConfidenceLabel = LabelMed
		}
	}
}

// IssueLabel describes a cluster for the issue list.
func IssueLabel(c *models.ClarityCluster) string {
	switch c.Type {
	case models.SignalRageClicks:
		return fmt.Sprintf("Rage clicks on %s", c.GroupKey)
	case models.SignalDeadClicks:
		return fmt.Sprintf("Dead clicks on %s", c.GroupKey)
	case models.SignalJSErrors:
		return c.GroupKey
	case models.SignalFormInvalid:
		return fmt.Sprintf("Invalid form field %s", c.GroupKey)
	case models.SignalScrollDropoff:
		return "Visitors leave before half the page"
	}
	return utils.TitleCase(c.Type)
}

// WhereLabel names the page an issue happens on.
func WhereLabel(page string) string {
	if page == "" {
		return "unknown page"
	}
	return page
}
