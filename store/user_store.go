package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"storepulse/api/models"
)

// ShopperNumberStore resolves client ids to shopper numbers. The BIGSERIAL
// column keeps numbers monotonically increasing.
type ShopperNumberStore struct {
	db DB
}

// NewShopperNumberStore creates a new ShopperNumberStore instance.
func NewShopperNumberStore(db DB) *ShopperNumberStore {
	return &ShopperNumberStore{db: db}
}

var _ ShopperStore = (*ShopperNumberStore)(nil)

const resolveShopperSQL = `
	INSERT INTO shoppers (store_id, client_id)
	VALUES ($1, $2)
	ON CONFLICT (store_id, client_id) DO UPDATE SET client_id = EXCLUDED.client_id
	RETURNING shopper_number;
`

func (s *ShopperNumberStore) Resolve(ctx context.Context, storeID, clientID string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, resolveShopperSQL, storeID, clientID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to resolve shopper: %w", err)
	}
	return n, nil
}

// VerificationTable holds clarity verification verdicts.
type VerificationTable struct {
	db DB
}

func NewVerificationTable(db DB) *VerificationTable {
	return &VerificationTable{db: db}
}

var _ VerificationStore = (*VerificationTable)(nil)

func (s *VerificationTable) Verifications(ctx context.Context, storeID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT signal_type, page, group_key, status
		FROM cluster_verifications
		WHERE store_id = $1;
	`, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query verifications: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var typ, page, key, status string
		if err := rows.Scan(&typ, &page, &key, &status); err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		out[models.VerificationKey(typ, page, key)] = status
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verifications: %w", err)
	}
	return out, nil
}

func (s *VerificationTable) SetVerification(ctx context.Context, storeID, typ, page, groupKey, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cluster_verifications (store_id, signal_type, page, group_key, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (store_id, signal_type, page, group_key)
		DO UPDATE SET status = EXCLUDED.status, updated_at = now();
	`, storeID, typ, page, groupKey, status)
	if err != nil {
		return fmt.Errorf("failed to save verification: %w", err)
	}
	log.Debugf("Verification saved: store=%s type=%s page=%s status=%s", storeID, typ, page, status)
	return nil
}

// InsightTable persists session insights and daily briefs.
type InsightTable struct {
	db DB
}

func NewInsightTable(db DB) *InsightTable {
	return &InsightTable{db: db}
}

var _ InsightStore = (*InsightTable)(nil)

func (s *InsightTable) SaveSessionInsight(ctx context.Context, in models.SessionInsight) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_insights (store_id, day, session_id, summary, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (store_id, day, session_id)
		DO UPDATE SET summary = EXCLUDED.summary, model = EXCLUDED.model, created_at = EXCLUDED.created_at;
	`, in.StoreID, in.Day, in.SessionID, in.Summary, in.Model, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session insight: %w", err)
	}
	return nil
}

func (s *InsightTable) SessionInsights(ctx context.Context, storeID, day string) (map[string]models.SessionInsight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, summary, model, created_at
		FROM session_insights
		WHERE store_id = $1 AND day = $2;
	`, storeID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query session insights: %w", err)
	}
	defer rows.Close()

	out := map[string]models.SessionInsight{}
	for rows.Next() {
		in := models.SessionInsight{StoreID: storeID, Day: day}
		if err := rows.Scan(&in.SessionID, &in.Summary, &in.Model, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session insight: %w", err)
		}
		out[in.SessionID] = in
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session insights: %w", err)
	}
	return out, nil
}

func (s *InsightTable) SaveBrief(ctx context.Context, b models.DailyBrief) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_briefs (store_id, day, brief, model, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (store_id, day)
		DO UPDATE SET brief = EXCLUDED.brief, model = EXCLUDED.model, created_at = EXCLUDED.created_at;
	`, b.StoreID, b.Day, b.Brief, b.Model, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save brief: %w", err)
	}
	return nil
}

func (s *InsightTable) Brief(ctx context.Context, storeID, day string) (*models.DailyBrief, error) {
	b := &models.DailyBrief{StoreID: storeID, Day: day}
	err := s.db.QueryRowContext(ctx, `
		SELECT brief, model, created_at
		FROM daily_briefs
		WHERE store_id = $1 AND day = $2;
	`, storeID, day).Scan(&b.Brief, &b.Model, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get brief: %w", err)
	}
	return b, nil
}
