package service

import (
	"context"
	"sort"
	"time"

	"storepulse/api/apperr"
	"storepulse/api/clarity"
	"storepulse/api/flow"
	"storepulse/api/models"
	"storepulse/api/normalizer"
	"storepulse/api/ranker"
	"storepulse/api/realtime"
	"storepulse/api/retention"
	"storepulse/api/rollup"
	"storepulse/api/utils"
)

const (
	defaultFeedLimit  = 50
	maxFeedLimit      = 500
	defaultDaysLimit  = 14
	maxDaysLimit      = 90
	topDropoffSteps   = 5
	topProducts       = 10
	overviewLookback  = 24 * time.Hour
	noCheckoutStepTag = "unknown"
)

// Realtime aggregates the trailing window. windowMinutes and topK fall back
// to the configured defaults when zero.
func (s *Service) Realtime(ctx context.Context, storeID string, windowMinutes, topK int) (models.Realtime, error) {
	const op = "realtime"
	if err := requireStore(op, storeID); err != nil {
		return models.Realtime{}, err
	}
	if windowMinutes <= 0 {
		windowMinutes = s.settings.RealtimeWindowMinutes
	}
	if topK <= 0 {
		topK = s.settings.RealtimeTopK
	}
	return do(ctx, s, op, func(ctx context.Context) (models.Realtime, error) {
		p := realtime.Params{Now: s.clock.Now(), WindowMinutes: windowMinutes, TopK: topK}
		events, err := s.scan(ctx, op, storeID, p.WindowStart(), time.Time{})
		if err != nil {
			return models.Realtime{}, err
		}
		return realtime.Aggregate(events, p), nil
	})
}

// Overview is the trailing 24h KPI roll-up.
func (s *Service) Overview(ctx context.Context, storeID string) (models.Overview, error) {
	const op = "overview"
	if err := requireStore(op, storeID); err != nil {
		return models.Overview{}, err
	}
	return do(ctx, s, op, func(ctx context.Context) (models.Overview, error) {
		now := s.clock.Now()
		from := s.policy.Clamp(now.Add(-overviewLookback), now)
		events, err := s.scan(ctx, op, storeID, from, time.Time{})
		if err != nil {
			return models.Overview{}, err
		}
		return s.overview(events, from, now), nil
	})
}

func (s *Service) overview(events []models.Event, from, now time.Time) models.Overview {
	sessions := rollup.Build("", events)
	ov := models.Overview{
		From:            from,
		To:              now,
		Sessions:        len(sessions),
		TopDropoffSteps: []models.StepCount{},
		Products:        []models.ProductInsight{},
	}

	steps := map[string]int{}
	for i := range sessions {
		ss := &sessions[i]
		if ss.ATCEvents > 0 {
			ov.ATC++
		}
		if ss.CheckoutStartedEvents > 0 {
			ov.CheckoutStarted++
		}
		if ss.PurchaseEvents > 0 {
			ov.Purchases++
		}
		if s.abandoned(ss, now) {
			ov.AbandonedATC++
			step := models.Deref(ss.LastCheckoutStep)
			if step == "" {
				step = noCheckoutStepTag
				if ss.CheckoutStartedEvents == 0 {
					step = "cart"
				}
			}
			steps[step]++
		}
	}
	for step, n := range steps {
		ov.TopDropoffSteps = append(ov.TopDropoffSteps, models.StepCount{Step: step, Sessions: n})
	}
	sort.Slice(ov.TopDropoffSteps, func(i, j int) bool {
		a, b := ov.TopDropoffSteps[i], ov.TopDropoffSteps[j]
		if a.Sessions != b.Sessions {
			return a.Sessions > b.Sessions
		}
		return a.Step < b.Step
	})
	if len(ov.TopDropoffSteps) > topDropoffSteps {
		ov.TopDropoffSteps = ov.TopDropoffSteps[:topDropoffSteps]
	}

	products := map[string]*models.ProductInsight{}
	for i := range events {
		e := &events[i]
		if e.ProductID == nil {
			continue
		}
		p, ok := products[*e.ProductID]
		if !ok {
			p = &models.ProductInsight{ProductID: *e.ProductID}
			products[*e.ProductID] = p
		}
		switch normalizer.Classify(e.EventName) {
		case normalizer.KindProductView:
			p.Views++
		case normalizer.KindATC:
			p.ATC++
		case normalizer.KindPurchase:
			p.Purchases++
		}
	}
	for _, p := range products {
		ov.Products = append(ov.Products, *p)
	}
	sort.Slice(ov.Products, func(i, j int) bool {
		a, b := ov.Products[i], ov.Products[j]
		if a.ATC != b.ATC {
			return a.ATC > b.ATC
		}
		if a.Views != b.Views {
			return a.Views > b.Views
		}
		return a.ProductID < b.ProductID
	})
	if len(ov.Products) > topProducts {
		ov.Products = ov.Products[:topProducts]
	}
	return ov
}

// Days lists recent days that are still inside the retention window.
func (s *Service) Days(ctx context.Context, storeID string, limit int) ([]models.DaySummary, error) {
	const op = "days"
	if err := requireStore(op, storeID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, defaultDaysLimit, maxDaysLimit)
	return do(ctx, s, op, func(ctx context.Context) ([]models.DaySummary, error) {
		days, err := s.events.ListDays(ctx, storeID, limit)
		if err != nil {
			return nil, apperr.StoreIO(op, err)
		}
		now := s.clock.Now()
		out := make([]models.DaySummary, 0, len(days))
		for _, d := range days {
			if s.policy.State(d.Day, now) != retention.DayStale {
				out = append(out, d)
			}
		}
		return out, nil
	})
}

// Sessions is the abandoned-session feed: sessions active within the
// abandon window, newest first.
func (s *Service) Sessions(ctx context.Context, storeID string, limit int) ([]models.SessionRow, error) {
	const op = "sessions"
	if err := requireStore(op, storeID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, defaultFeedLimit, maxFeedLimit)
	return do(ctx, s, op, func(ctx context.Context) ([]models.SessionRow, error) {
		now := s.clock.Now()
		events, err := s.scan(ctx, op, storeID, now.Add(-s.settings.AbandonAfter), time.Time{})
		if err != nil {
			return nil, err
		}
		sessions := rollup.Build("", events)
		rollup.SortRecent(sessions)
		if len(sessions) > limit {
			sessions = sessions[:limit]
		}
		return s.decorate(ctx, storeID, sessions, now)
	})
}

// SessionsByDay returns one day's session summaries, newest first. A stale
// day yields an empty feed with a hint.
func (s *Service) SessionsByDay(ctx context.Context, storeID, day string, limit int) (models.SessionFeed, error) {
	const op = "sessions_by_day"
	if err := requireStore(op, storeID); err != nil {
		return models.SessionFeed{}, err
	}
	day, state, err := s.resolveDay(op, day)
	if err != nil {
		return models.SessionFeed{}, err
	}
	if state == retention.DayStale {
		return models.SessionFeed{Day: day, Sessions: []models.SessionRow{}, Stale: true, Hint: s.staleHint()}, nil
	}
	limit = clampLimit(limit, defaultFeedLimit, maxFeedLimit)
	return do(ctx, s, op, func(ctx context.Context) (models.SessionFeed, error) {
		r, err := s.dayRollup(ctx, storeID, day)
		if err != nil {
			return models.SessionFeed{}, err
		}
		sessions := append([]models.SessionSummary(nil), r.Sessions...)
		rollup.SortRecent(sessions)
		if len(sessions) > limit {
			sessions = sessions[:limit]
		}
		rows, err := s.decorate(ctx, storeID, sessions, s.clock.Now())
		if err != nil {
			return models.SessionFeed{}, err
		}
		return models.SessionFeed{Day: day, Sessions: rows}, nil
	})
}

// decorate flags abandonment and joins stored LLM summaries.
func (s *Service) decorate(ctx context.Context, storeID string, sessions []models.SessionSummary, now time.Time) ([]models.SessionRow, error) {
	insights := map[string]map[string]models.SessionInsight{}
	rows := make([]models.SessionRow, 0, len(sessions))
	for i := range sessions {
		ss := sessions[i]
		byDay, ok := insights[ss.Day]
		if !ok {
			var err error
			byDay, err = s.insights.SessionInsights(ctx, storeID, ss.Day)
			if err != nil {
				return nil, apperr.StoreIO("sessions.insights", err)
			}
			insights[ss.Day] = byDay
		}
		row := models.SessionRow{SessionSummary: ss, Abandoned: s.abandoned(&ss, now)}
		if in, ok := byDay[ss.SessionID]; ok {
			row.AISummary = in.Summary
			row.AIModel = in.Model
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// EventsByDay returns one session's ordered event stream on a day. A stale
// day yields an empty stream with a hint.
func (s *Service) EventsByDay(ctx context.Context, storeID, day, sessionID string, limit int) (models.EventStream, error) {
	const op = "events_by_day"
	if err := requireStore(op, storeID); err != nil {
		return models.EventStream{}, err
	}
	if sessionID == "" {
		return models.EventStream{}, apperr.Validation(op, "sessionId is required")
	}
	day, state, err := s.resolveDay(op, day)
	if err != nil {
		return models.EventStream{}, err
	}
	res := models.EventStream{Day: day, SessionID: sessionID, Events: []models.EventView{}}
	if state == retention.DayStale {
		res.Stale = true
		res.Hint = s.staleHint()
		return res, nil
	}
	limit = clampLimit(limit, maxFeedLimit, 5000)
	return do(ctx, s, op, func(ctx context.Context) (models.EventStream, error) {
		from, to, _ := utils.DayRange(day)
		events, err := s.events.ScanSession(ctx, storeID, sessionID, s.policy.Clamp(from, s.clock.Now()), to)
		if err != nil {
			return models.EventStream{}, apperr.StoreIO(op, err)
		}
		if len(events) == 0 {
			return models.EventStream{}, apperr.NotFound(op, "no events for session "+sessionID+" on "+day)
		}
		if len(events) > limit {
			events = events[:limit]
		}
		res.Events = views(events)
		return res, nil
	})
}

// Events returns the newest raw events for debugging.
func (s *Service) Events(ctx context.Context, storeID string, limit int) ([]models.EventView, error) {
	const op = "events"
	if err := requireStore(op, storeID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, defaultFeedLimit, maxFeedLimit)
	return do(ctx, s, op, func(ctx context.Context) ([]models.EventView, error) {
		events, err := s.events.Recent(ctx, storeID, limit)
		if err != nil {
			return nil, apperr.StoreIO(op, err)
		}
		cutoff := s.policy.Cutoff(s.clock.Now())
		kept := make([]models.Event, 0, len(events))
		for _, e := range events {
			if !e.ServerTS.Before(cutoff) {
				kept = append(kept, e)
			}
		}
		return views(kept), nil
	})
}

func views(events []models.Event) []models.EventView {
	out := make([]models.EventView, 0, len(events))
	for _, e := range events {
		out = append(out, models.EventView{Event: e, Label: normalizer.Label(e.EventName)})
	}
	return out
}

// FlowQuery selects a flow or clarity computation.
type FlowQuery struct {
	StoreID       string
	Day           string
	Mode          string
	LimitSessions int
	View          string
}

// Flow computes the shop walk for a day.
func (s *Service) Flow(ctx context.Context, q FlowQuery) (models.FlowReport, error) {
	const op = "flow"
	if err := requireStore(op, q.StoreID); err != nil {
		return models.FlowReport{}, err
	}
	mode, err := flow.ParseMode(q.Mode)
	if err != nil {
		return models.FlowReport{}, err
	}
	day, state, err := s.resolveDay(op, q.Day)
	if err != nil {
		return models.FlowReport{}, err
	}
	p := flow.Params{StoreID: q.StoreID, Day: day, Mode: mode, LimitSessions: q.LimitSessions}
	if state == retention.DayStale {
		report := flow.Compute(nil, p)
		report.Stale = true
		report.Hint = s.staleHint()
		return report, nil
	}
	return do(ctx, s, op, func(ctx context.Context) (models.FlowReport, error) {
		r, err := s.dayRollup(ctx, q.StoreID, day)
		if err != nil {
			return models.FlowReport{}, err
		}
		report := flow.Compute(r.Sessions, p)
		report.RetentionClipped = r.Clipped
		return report, nil
	})
}

// Clarity clusters the day's friction signals and ranks them.
func (s *Service) Clarity(ctx context.Context, q FlowQuery) (models.ClarityReport, error) {
	const op = "clarity"
	if err := requireStore(op, q.StoreID); err != nil {
		return models.ClarityReport{}, err
	}
	mode, err := flow.ParseMode(q.Mode)
	if err != nil {
		return models.ClarityReport{}, err
	}
	view, err := ranker.ParseView(q.View)
	if err != nil {
		return models.ClarityReport{}, err
	}
	day, state, err := s.resolveDay(op, q.Day)
	if err != nil {
		return models.ClarityReport{}, err
	}
	p := clarity.Params{StoreID: q.StoreID, Day: day, Mode: mode, LimitSessions: q.LimitSessions}
	if state == retention.DayStale {
		report := clarity.Compute(nil, nil, p, nil)
		report.View = view
		report.Stale = true
		report.Hint = s.staleHint()
		return report, nil
	}
	return do(ctx, s, op, func(ctx context.Context) (models.ClarityReport, error) {
		r, err := s.dayRollup(ctx, q.StoreID, day)
		if err != nil {
			return models.ClarityReport{}, err
		}
		v, err := s.verifications.Verifications(ctx, q.StoreID)
		if err != nil {
			return models.ClarityReport{}, apperr.StoreIO(op+".verifications", err)
		}
		report := clarity.Compute(r.Signals, r.Sessions, p, v)
		ranked := ranker.Rank(report.Clusters, flow.Eligible(r.Sessions, mode, q.LimitSessions),
			ranker.Params{Day: day, Now: s.clock.Now(), View: view})
		report.View = ranked.View
		report.TopIssues = ranked.Rows
		report.SummaryIssue = ranked.Summary
		report.RetentionClipped = r.Clipped
		return report, nil
	})
}

// TopIssues is the ranked view of Clarity on its own.
func (s *Service) TopIssues(ctx context.Context, q FlowQuery) (models.TopIssuesReport, error) {
	report, err := s.Clarity(ctx, q)
	if err != nil {
		return models.TopIssuesReport{}, err
	}
	return models.TopIssuesReport{
		Day:              report.Day,
		View:             report.View,
		Mode:             report.Mode,
		TotalSessions:    report.TotalSessions,
		Rows:             report.TopIssues,
		SummaryIssue:     report.SummaryIssue,
		RetentionClipped: report.RetentionClipped,
		Stale:            report.Stale,
		Hint:             report.Hint,
	}, nil
}

// Brief returns the stored brief for a day, if any.
func (s *Service) Brief(ctx context.Context, storeID, day string) (models.BriefResult, error) {
	const op = "brief"
	if err := requireStore(op, storeID); err != nil {
		return models.BriefResult{}, err
	}
	day, state, err := s.resolveDay(op, day)
	if err != nil {
		return models.BriefResult{}, err
	}
	return do(ctx, s, op, func(ctx context.Context) (models.BriefResult, error) {
		b, err := s.insights.Brief(ctx, storeID, day)
		if err != nil {
			return models.BriefResult{}, apperr.StoreIO(op, err)
		}
		res := models.BriefResult{Day: day, Brief: b}
		if b == nil && state == retention.DayStale {
			res.Stale = true
			res.Hint = s.staleHint()
		}
		return res, nil
	})
}
