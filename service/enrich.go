package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"storepulse/api/apperr"
	"storepulse/api/flow"
	"storepulse/api/llm"
	"storepulse/api/metrics"
	"storepulse/api/models"
	"storepulse/api/ranker"
	"storepulse/api/retention"
	"storepulse/api/rollup"
	"storepulse/api/utils"
)

const (
	defaultAnalyzeLimit = 20
	maxAnalyzeLimit     = 200
	analyzeConcurrency  = 4
	briefTopIssues      = 5
)

// generate calls the gateway. Failures are logged on the llm component and
// reported as ok=false; they never fail the caller.
func (s *Service) generate(ctx context.Context, op, storeID, prompt string, params llm.GenerationParams) (text, model string, ok bool) {
	text, model, err := s.llm.Generate(ctx, prompt, params)
	if err == nil {
		return text, model, true
	}
	entry := log.WithFields(log.Fields{"component": "llm", "store": storeID, "operation": op})
	if errors.Is(err, llm.ErrDisabled) {
		entry.Debug("enrichment skipped, gateway not configured")
		return "", "", false
	}
	metrics.LLMFailures.WithLabelValues(op).Inc()
	entry.WithError(apperr.LLMUnavailable(op, err)).Warn("enrichment failed, serving plain projection")
	return "", "", false
}

// AnalyzeSession summarizes one session and persists the summary. When date
// is empty the session's first retained day is used. A stale date yields a
// result without a session and a hint.
func (s *Service) AnalyzeSession(ctx context.Context, req models.AnalyzeSessionRequest) (models.SessionAnalysis, error) {
	const op = "analyze_session"
	if err := requireStore(op, req.Store); err != nil {
		return models.SessionAnalysis{}, err
	}
	if req.SessionID == "" {
		return models.SessionAnalysis{}, apperr.Validation(op, "sessionId is required")
	}

	now := s.clock.Now()
	from, to := s.policy.Cutoff(now), time.Time{}
	if req.Date != "" {
		day, state, err := s.resolveDay(op, req.Date)
		if err != nil {
			return models.SessionAnalysis{}, err
		}
		if state == retention.DayStale {
			return models.SessionAnalysis{Day: day, Stale: true, Hint: s.staleHint()}, nil
		}
		from, to, _ = utils.DayRange(day)
		from = s.policy.Clamp(from, now)
	}

	type loaded struct {
		summary models.SessionSummary
		events  []models.Event
	}
	got, err := do(ctx, s, op, func(ctx context.Context) (loaded, error) {
		events, err := s.events.ScanSession(ctx, req.Store, req.SessionID, from, to)
		if err != nil {
			return loaded{}, apperr.StoreIO(op, err)
		}
		if len(events) == 0 {
			return loaded{}, apperr.NotFound(op, "session "+req.SessionID+" not found")
		}
		day := utils.DayString(events[0].ServerTS)
		dayEvents := make([]models.Event, 0, len(events))
		for _, e := range events {
			if utils.DayString(e.ServerTS) == day {
				dayEvents = append(dayEvents, e)
			}
		}
		return loaded{summary: rollup.Build(day, dayEvents)[0], events: dayEvents}, nil
	})
	if err != nil {
		return models.SessionAnalysis{}, err
	}

	row := models.SessionRow{SessionSummary: got.summary, Abandoned: s.abandoned(&got.summary, s.clock.Now())}
	if in, ok := s.analyze(ctx, op, &got.summary, got.events, llm.GenerationParams{Model: req.Model, Temperature: req.Temperature}); ok {
		row.AISummary = in.Summary
		row.AIModel = in.Model
	}
	return models.SessionAnalysis{Day: got.summary.Day, Session: &row}, nil
}

// analyze generates and stores one session insight.
func (s *Service) analyze(ctx context.Context, op string, ss *models.SessionSummary, events []models.Event, params llm.GenerationParams) (models.SessionInsight, bool) {
	text, model, ok := s.generate(ctx, op, ss.StoreID, llm.SessionPrompt(ss, events), params)
	if !ok {
		return models.SessionInsight{}, false
	}
	in := models.SessionInsight{
		StoreID:   ss.StoreID,
		Day:       ss.Day,
		SessionID: ss.SessionID,
		Summary:   text,
		Model:     model,
		CreatedAt: s.clock.Now(),
	}
	if err := s.insights.SaveSessionInsight(ctx, in); err != nil {
		log.WithFields(log.Fields{"component": "llm", "store": ss.StoreID, "session": ss.SessionID}).WithError(err).Warn("failed to store session insight")
	}
	return in, true
}

// AnalyzeDay summarizes up to limit of the day's most recent eligible
// sessions that have no summary yet, so repeated calls work back through the
// day. Mode defaults to high intent.
func (s *Service) AnalyzeDay(ctx context.Context, req models.AnalyzeDayRequest) (models.AnalyzeDayResult, error) {
	const op = "analyze_day"
	if err := requireStore(op, req.Store); err != nil {
		return models.AnalyzeDayResult{}, err
	}
	rawMode := req.Mode
	if rawMode == "" {
		rawMode = flow.ModeHighIntentNoPurchase
	}
	mode, err := flow.ParseMode(rawMode)
	if err != nil {
		return models.AnalyzeDayResult{}, err
	}
	day, state, err := s.resolveDay(op, req.Date)
	if err != nil {
		return models.AnalyzeDayResult{}, err
	}
	res := models.AnalyzeDayResult{Day: day, Mode: mode}
	if state == retention.DayStale {
		res.Stale = true
		res.Hint = s.staleHint()
		return res, nil
	}
	limit := clampLimit(req.Limit, defaultAnalyzeLimit, maxAnalyzeLimit)

	type loaded struct {
		eligible int
		skipped  int
		pending  []models.SessionSummary
	}
	got, err := do(ctx, s, op, func(ctx context.Context) (loaded, error) {
		r, err := s.dayRollup(ctx, req.Store, day)
		if err != nil {
			return loaded{}, err
		}
		done, err := s.insights.SessionInsights(ctx, req.Store, day)
		if err != nil {
			return loaded{}, apperr.StoreIO(op+".insights", err)
		}
		eligible := flow.Eligible(r.Sessions, mode, 0)
		pending := rollup.Filter(eligible, func(ss *models.SessionSummary) bool {
			_, ok := done[ss.SessionID]
			return !ok
		})
		skipped := len(eligible) - len(pending)
		rollup.SortRecent(pending)
		if len(pending) > limit {
			pending = pending[:limit]
		}
		return loaded{eligible: len(eligible), skipped: skipped, pending: pending}, nil
	})
	if err != nil {
		return models.AnalyzeDayResult{}, err
	}
	res.Candidates = got.eligible
	res.Skipped = got.skipped

	from, to, _ := utils.DayRange(day)
	from = s.policy.Clamp(from, s.clock.Now())
	params := llm.GenerationParams{Model: req.Model, Temperature: req.Temperature}

	var analyzed, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(analyzeConcurrency)
	for i := range got.pending {
		ss := got.pending[i]
		g.Go(func() error {
			events, err := s.events.ScanSession(gctx, req.Store, ss.SessionID, from, to)
			if err != nil {
				failed.Add(1)
				log.WithFields(log.Fields{"component": "service", "store": req.Store, "session": ss.SessionID}).WithError(err).Warn("session scan failed")
				return nil
			}
			if _, ok := s.analyze(gctx, op, &ss, events, params); ok {
				analyzed.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return models.AnalyzeDayResult{}, err
	}

	res.Analyzed = int(analyzed.Load())
	res.Failed = int(failed.Load())
	return res, nil
}

// GenerateBrief writes the daily brief from the day's flow and top issues.
// A gateway failure returns the result without a brief.
func (s *Service) GenerateBrief(ctx context.Context, req models.GenerateBriefRequest) (models.BriefResult, error) {
	const op = "generate_brief"
	if err := requireStore(op, req.Store); err != nil {
		return models.BriefResult{}, err
	}
	day, state, err := s.resolveDay(op, req.Date)
	if err != nil {
		return models.BriefResult{}, err
	}
	res := models.BriefResult{Day: day}
	if state == retention.DayStale {
		res.Stale = true
		res.Hint = s.staleHint()
		return res, nil
	}

	q := FlowQuery{StoreID: req.Store, Day: day, LimitSessions: req.LimitSessions, View: ranker.ViewAllIssues}
	walk, err := s.Flow(ctx, q)
	if err != nil {
		return models.BriefResult{}, err
	}
	issues, err := s.Clarity(ctx, q)
	if err != nil {
		return models.BriefResult{}, err
	}
	top := issues.TopIssues
	if len(top) > briefTopIssues {
		top = top[:briefTopIssues]
	}

	text, model, ok := s.generate(ctx, op, req.Store, llm.BriefPrompt(day, walk, top),
		llm.GenerationParams{Model: req.Model, Temperature: req.Temperature})
	if !ok {
		return res, nil
	}
	b := &models.DailyBrief{StoreID: req.Store, Day: day, Brief: text, Model: model, CreatedAt: s.clock.Now()}
	if err := s.insights.SaveBrief(ctx, *b); err != nil {
		log.WithFields(log.Fields{"component": "llm", "store": req.Store, "day": day}).WithError(err).Warn("failed to store brief")
	}
	res.Brief = b
	return res, nil
}

// SetVerification records the verifier's verdict for a verifiable cluster.
func (s *Service) SetVerification(ctx context.Context, req models.VerificationRequest) error {
	const op = "set_verification"
	if err := requireStore(op, req.Store); err != nil {
		return err
	}
	if !models.Verifiable(req.Type) {
		return apperr.Validation(op, "type must be rage_clicks, dead_clicks or js_errors")
	}
	switch req.Status {
	case models.VerificationConfirmed, models.VerificationFalsePositive, models.VerificationUnverified:
	default:
		return apperr.Validation(op, "status must be confirmed, false_positive or unverified")
	}
	_, err := do(ctx, s, op, func(ctx context.Context) (struct{}, error) {
		err := s.verifications.SetVerification(ctx, req.Store, req.Type, req.Page, req.GroupKey, req.Status)
		return struct{}{}, apperr.StoreIO(op, err)
	})
	return err
}
