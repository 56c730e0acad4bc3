package service

import (
	"context"

	log "github.com/sirupsen/logrus"

	"storepulse/api/apperr"
	"storepulse/api/metrics"
	"storepulse/api/models"
	"storepulse/api/normalizer"
	"storepulse/api/utils"
)

// Ingest normalizes a batch of envelopes and appends the valid ones. A bad
// envelope is rejected on its own; only a store failure fails the batch.
func (s *Service) Ingest(ctx context.Context, envs []models.Envelope) (models.IngestResult, error) {
	const op = "ingest"
	res := models.IngestResult{Rejected: []models.Rejection{}}
	if len(envs) == 0 {
		return res, nil
	}

	now := s.clock.Now()
	cutoff := s.policy.Cutoff(now)
	valid := make([]models.Event, 0, len(envs))
	for i, env := range envs {
		if normalizer.IsBot(env.UserAgent) {
			res.Bots++
			continue
		}
		e, err := s.normalizer.Normalize(env)
		if err == nil && e.ServerTS.Before(cutoff) {
			err = apperr.Validation(op, "server_ts is older than the retention window")
		}
		if err != nil {
			res.Rejected = append(res.Rejected, models.Rejection{
				Index:   i,
				Kind:    string(apperr.KindOf(err)),
				Message: apperr.Message(err),
			})
			continue
		}
		s.resolveShopper(ctx, &e)
		valid = append(valid, e)
	}

	metrics.IngestEvents.WithLabelValues("rejected").Add(float64(len(res.Rejected)))
	metrics.IngestEvents.WithLabelValues("bot").Add(float64(res.Bots))
	if len(valid) == 0 {
		return res, nil
	}

	added, err := do(ctx, s, op, func(ctx context.Context) (int, error) {
		n, err := s.events.Append(ctx, valid)
		return n, apperr.StoreIO(op, err)
	})
	if err != nil {
		return models.IngestResult{}, err
	}
	res.Accepted = added
	res.Duplicates = len(valid) - added
	metrics.IngestEvents.WithLabelValues("accepted").Add(float64(res.Accepted))
	metrics.IngestEvents.WithLabelValues("duplicate").Add(float64(res.Duplicates))

	if s.cache != nil && added > 0 {
		touched := map[string]map[string]struct{}{}
		for i := range valid {
			e := &valid[i]
			if touched[e.StoreID] == nil {
				touched[e.StoreID] = map[string]struct{}{}
			}
			touched[e.StoreID][utils.DayString(e.ServerTS)] = struct{}{}
		}
		for storeID, days := range touched {
			for day := range days {
				s.cache.Invalidate(storeID, day)
			}
		}
	}
	return res, nil
}

// resolveShopper attaches a shopper number when the envelope carried a
// client id but no number. A resolver failure leaves the event anonymous.
func (s *Service) resolveShopper(ctx context.Context, e *models.Event) {
	if e.ShopperNumber != nil || e.ClientID == nil {
		return
	}
	n, err := s.shoppers.Resolve(ctx, e.StoreID, *e.ClientID)
	if err != nil {
		log.WithFields(log.Fields{"component": "ingest", "store": e.StoreID}).WithError(err).Warn("shopper resolve failed")
		return
	}
	e.ShopperNumber = &n
}
