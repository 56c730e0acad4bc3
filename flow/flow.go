// Package flow builds the shop walk: how far sessions got down the funnel
// ladder, how long they lingered, and who stopped where.
package flow

import (
	"sort"
	"time"

	"storepulse/api/apperr"
	"storepulse/api/models"
	"storepulse/api/rollup"
	"storepulse/api/utils"
)

// Modes accepted by Compute.
const (
	ModeAll                  = "all"
	ModeHighIntentNoPurchase = "high_intent_no_purchase"
)

const (
	DefaultLimitSessions = 5000
	sampleSize           = 6
	topDevices           = 3
	topCountries         = 3
	topCampaigns         = 2
)

// Params select the session universe for one day.
type Params struct {
	StoreID       string
	Day           string
	Mode          string
	LimitSessions int
}

// ParseMode validates a mode query value; empty means all.
func ParseMode(raw string) (string, error) {
	switch raw {
	case "", ModeAll:
		return ModeAll, nil
	case ModeHighIntentNoPurchase, "high_intent":
		return ModeHighIntentNoPurchase, nil
	}
	return "", apperr.Validation("flow.mode", "mode must be all or high_intent_no_purchase")
}

// Eligible applies the mode filter and the session limit.
func Eligible(sessions []models.SessionSummary, mode string, limit int) []models.SessionSummary {
	if mode == ModeHighIntentNoPurchase {
		sessions = rollup.Filter(sessions, (*models.SessionSummary).HighIntentNoPurchase)
	}
	if limit <= 0 {
		limit = DefaultLimitSessions
	}
	return rollup.Limit(sessions, limit)
}

// Compute builds the flow report from a day's session summaries.
func Compute(sessions []models.SessionSummary, p Params) models.FlowReport {
	if p.Mode == "" {
		p.Mode = ModeAll
	}
	eligible := Eligible(sessions, p.Mode, p.LimitSessions)

	report := models.FlowReport{
		Day:           p.Day,
		Mode:          p.Mode,
		TotalSessions: len(eligible),
		Stages:        make([]models.FlowStage, 0, len(models.Ladder)),
		Dropoffs:      []models.DropoffCluster{},
	}

	reached := make([]int, len(models.Ladder))
	for i := range eligible {
		for st := models.StageLanding; st <= eligible[i].InferredStage; st++ {
			reached[st]++
		}
	}

	dwell := dwellSamples(eligible, p.Day)

	for _, st := range models.Ladder {
		fs := models.FlowStage{Stage: st, Reached: reached[st]}
		if !st.Terminal() {
			fs.AdvanceToNext = reached[st.Next()]
			fs.Dropoffs = fs.Reached - fs.AdvanceToNext
		}
		samples := dwell[st]
		sort.Float64s(samples)
		fs.P50DwellSec = utils.Round1(utils.NearestRank(samples, 50))
		fs.P90DwellSec = utils.Round1(utils.NearestRank(samples, 90))
		report.Stages = append(report.Stages, fs)

		if !st.Terminal() && fs.Dropoffs > 0 {
			report.Dropoffs = append(report.Dropoffs, cluster(eligible, st, fs.Dropoffs, p))
		}
	}
	return report
}

// dwellSamples collects seconds spent at each occupied stage. A stage left
// for a later one ends at that promotion; the final stage ends at last_seen,
// capped to the end of the day.
func dwellSamples(sessions []models.SessionSummary, day string) map[models.Stage][]float64 {
	out := map[models.Stage][]float64{}
	_, dayEnd, err := utils.DayRange(day)
	for i := range sessions {
		s := &sessions[i]
		tl := s.Timeline
		for j, promo := range tl {
			if promo.Skipped {
				continue
			}
			var end time.Time
			if j+1 < len(tl) {
				end = tl[j+1].At
			} else {
				end = s.LastSeen
				if err == nil && end.After(dayEnd) {
					end = dayEnd
				}
			}
			secs := end.Sub(promo.At).Seconds()
			if secs < 0 {
				secs = 0
			}
			out[promo.Stage] = append(out[promo.Stage], secs)
		}
	}
	return out
}

func cluster(sessions []models.SessionSummary, st models.Stage, dropoffs int, p Params) models.DropoffCluster {
	devices, countries, campaigns := newChips(), newChips(), newChips()
	var ids []string
	for i := range sessions {
		s := &sessions[i]
		if s.InferredStage != st {
			continue
		}
		ids = append(ids, s.SessionID)
		devices.add(s.DeviceType, s.LastSeen)
		countries.add(s.CountryCode, s.LastSeen)
		campaigns.add(s.UTMCampaign, s.LastSeen)
	}
	sort.Strings(ids)
	return models.DropoffCluster{
		Stage:          st,
		Dropoffs:       dropoffs,
		Devices:        devices.top(topDevices),
		Countries:      countries.top(topCountries),
		Campaigns:      campaigns.top(topCampaigns),
		SampleSessions: utils.Reservoir(ids, sampleSize, utils.Seed(p.StoreID, p.Day, "flow", st.String())),
	}
}

type chips struct {
	sessions map[string]int
	last     map[string]time.Time
}

func newChips() *chips {
	return &chips{sessions: map[string]int{}, last: map[string]time.Time{}}
}

// add counts one session; nulls are not chips.
func (c *chips) add(v *string, seen time.Time) {
	if v == nil || *v == "" {
		return
	}
	c.sessions[*v]++
	if seen.After(c.last[*v]) {
		c.last[*v] = seen
	}
}

func (c *chips) top(k int) []models.Chip {
	out := make([]models.Chip, 0, len(c.sessions))
	for v, n := range c.sessions {
		out = append(out, models.Chip{Value: v, Sessions: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sessions != out[j].Sessions {
			return out[i].Sessions > out[j].Sessions
		}
		li, lj := c.last[out[i].Value], c.last[out[j].Value]
		if !li.Equal(lj) {
			return li.After(lj)
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
