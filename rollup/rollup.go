// Package rollup folds ordered events into per-session summaries.
package rollup

import (
	"sort"
	"time"

	"storepulse/api/models"
	"storepulse/api/normalizer"
	"storepulse/api/utils"
)

// New starts an empty summary for the session e belongs to.
func New(day string, e *models.Event) *models.SessionSummary {
	return &models.SessionSummary{
		StoreID:   e.StoreID,
		Day:       day,
		SessionID: e.SessionID,
		FirstSeen: e.ServerTS,
		LastSeen:  e.ServerTS,
	}
}

// Apply folds one event into s. Events must arrive in (server_ts, id) order.
func Apply(s *models.SessionSummary, e *models.Event) {
	s.TotalEvents++
	if e.ServerTS.Before(s.FirstSeen) {
		s.FirstSeen = e.ServerTS
	}
	if e.ServerTS.After(s.LastSeen) {
		s.LastSeen = e.ServerTS
	}

	switch normalizer.Classify(e.EventName) {
	case normalizer.KindProductView:
		s.ProductViews++
	case normalizer.KindATC:
		s.ATCEvents++
		if s.ATCAt == nil {
			s.ATCAt = timePtr(e.ServerTS)
		}
	case normalizer.KindCartView:
		s.CartEvents++
	case normalizer.KindCheckoutStart:
		s.CheckoutStartedEvents++
	case normalizer.KindPurchase:
		s.PurchaseEvents++
		if s.PurchaseAt == nil {
			s.PurchaseAt = timePtr(e.ServerTS)
		}
	}

	if e.CheckoutStep != nil {
		step := *e.CheckoutStep
		s.LastCheckoutStep = &step
		if s.FurthestCheckoutStep == nil || stepRank(step) > stepRank(*s.FurthestCheckoutStep) {
			furthest := step
			s.FurthestCheckoutStep = &furthest
		}
	}
	if e.PagePath != nil {
		s.LastPagePath = e.PagePath
	}
	if cart := e.ParseData().Cart; len(cart) > 0 && string(cart) != "null" {
		s.LastCartJSON = append([]byte(nil), cart...)
	}

	// first non-null wins
	if s.DeviceType == nil {
		s.DeviceType = e.DeviceType
	}
	if s.CountryCode == nil {
		s.CountryCode = e.CountryCode
	}
	if s.UTMSource == nil {
		s.UTMSource = e.UTMSource
	}
	if s.UTMCampaign == nil {
		s.UTMCampaign = e.UTMCampaign
	}
	if s.ShopperNumber == nil {
		s.ShopperNumber = e.ShopperNumber
	}
	if s.ClientID == nil {
		s.ClientID = e.ClientID
	}

	stage := Classify(s)
	if len(s.Timeline) == 0 || stage > s.InferredStage {
		promote(s, stage, e.ServerTS)
	}
	s.InferredStage = stage
}

// promote appends every rung between the current stage and stage, all at ts.
func promote(s *models.SessionSummary, stage models.Stage, ts time.Time) {
	from := models.StageLanding
	if len(s.Timeline) > 0 {
		from = s.InferredStage + 1
	}
	for st := from; st <= stage; st++ {
		s.Timeline = append(s.Timeline, models.StagePromotion{Stage: st, At: ts, Skipped: st < stage})
	}
}

// Build folds events into one summary per session. Events may arrive in any
// order; they are folded in (server_ts, id) order. The day label is taken
// from each session's first event unless day is set.
func Build(day string, events []models.Event) []models.SessionSummary {
	ordered := make([]*models.Event, len(events))
	for i := range events {
		ordered[i] = &events[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	bySession := make(map[string]*models.SessionSummary)
	var order []string
	for _, e := range ordered {
		s, ok := bySession[e.SessionID]
		if !ok {
			d := day
			if d == "" {
				d = utils.DayString(e.ServerTS)
			}
			s = New(d, e)
			bySession[e.SessionID] = s
			order = append(order, e.SessionID)
		}
		Apply(s, e)
	}

	out := make([]models.SessionSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *bySession[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// SortRecent orders summaries by last_seen desc, then session_id asc.
func SortRecent(ss []models.SessionSummary) {
	sort.SliceStable(ss, func(i, j int) bool {
		if !ss[i].LastSeen.Equal(ss[j].LastSeen) {
			return ss[i].LastSeen.After(ss[j].LastSeen)
		}
		return ss[i].SessionID < ss[j].SessionID
	})
}

// Limit keeps the n most recently active sessions. n <= 0 keeps everything.
// The result is returned in session_id order.
func Limit(ss []models.SessionSummary, n int) []models.SessionSummary {
	if n <= 0 || len(ss) <= n {
		return ss
	}
	recent := append([]models.SessionSummary(nil), ss...)
	SortRecent(recent)
	recent = recent[:n]
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].SessionID < recent[j].SessionID })
	return recent
}

// Filter keeps the summaries matching keep.
func Filter(ss []models.SessionSummary, keep func(*models.SessionSummary) bool) []models.SessionSummary {
	out := make([]models.SessionSummary, 0, len(ss))
	for i := range ss {
		if keep(&ss[i]) {
			out = append(out, ss[i])
		}
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }
