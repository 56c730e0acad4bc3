// api/store/event_store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"storepulse/api/database"
	"storepulse/api/models"
)

// ClickHouseEventStore reads and writes the session_events table. The
// table is a ReplacingMergeTree keyed on (store_id, id), so re-sent events
// collapse and every read uses FINAL.
type ClickHouseEventStore struct {
	DB *database.ClickHouseClient
}

func NewClickHouseEventStore(chClient *database.ClickHouseClient) *ClickHouseEventStore {
	return &ClickHouseEventStore{DB: chClient}
}

var _ EventStore = (*ClickHouseEventStore)(nil)

const eventColumns = `id, store_id, shopper_number, client_id, session_id, event_ts, server_ts, event_name,
	page_path, page_url, checkout_step, product_id, variant_id, utm_source, utm_campaign,
	device_type, country_code, data_json`

// eventRow mirrors session_events for Select.
type eventRow struct {
	ID            string    `ch:"id"`
	StoreID       string    `ch:"store_id"`
	ShopperNumber *int64    `ch:"shopper_number"`
	ClientID      *string   `ch:"client_id"`
	SessionID     string    `ch:"session_id"`
	EventTS       time.Time `ch:"event_ts"`
	ServerTS      time.Time `ch:"server_ts"`
	EventName     string    `ch:"event_name"`
	PagePath      *string   `ch:"page_path"`
	PageURL       *string   `ch:"page_url"`
	CheckoutStep  *string   `ch:"checkout_step"`
	ProductID     *string   `ch:"product_id"`
	VariantID     *string   `ch:"variant_id"`
	UTMSource     *string   `ch:"utm_source"`
	UTMCampaign   *string   `ch:"utm_campaign"`
	DeviceType    *string   `ch:"device_type"`
	CountryCode   *string   `ch:"country_code"`
	DataJSON      string    `ch:"data_json"`
}

func (r *eventRow) event() models.Event {
	e := models.Event{
		ID:            r.ID,
		StoreID:       r.StoreID,
		ShopperNumber: r.ShopperNumber,
		ClientID:      r.ClientID,
		SessionID:     r.SessionID,
		EventTS:       r.EventTS.UTC(),
		ServerTS:      r.ServerTS.UTC(),
		EventName:     r.EventName,
		PagePath:      r.PagePath,
		PageURL:       r.PageURL,
		CheckoutStep:  r.CheckoutStep,
		ProductID:     r.ProductID,
		VariantID:     r.VariantID,
		UTMSource:     r.UTMSource,
		UTMCampaign:   r.UTMCampaign,
		DeviceType:    r.DeviceType,
		CountryCode:   r.CountryCode,
	}
	if r.DataJSON != "" {
		e.Data = json.RawMessage(r.DataJSON)
	}
	return e
}

// idsByStore groups event ids by store, keeping first-seen order.
func idsByStore(events []models.Event) map[string][]string {
	out := map[string][]string{}
	for i := range events {
		out[events[i].StoreID] = append(out[events[i].StoreID], events[i].ID)
	}
	return out
}

// freshEvents drops events whose (store_id, id) is already stored, and
// repeats of an id within the batch.
func freshEvents(events []models.Event, stored map[string]map[string]struct{}) []models.Event {
	seen := map[string]map[string]struct{}{}
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		if _, ok := stored[e.StoreID][e.ID]; ok {
			continue
		}
		if seen[e.StoreID] == nil {
			seen[e.StoreID] = map[string]struct{}{}
		}
		if _, ok := seen[e.StoreID][e.ID]; ok {
			continue
		}
		seen[e.StoreID][e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}

// storedIDs returns which of ids already exist for a store.
func (s *ClickHouseEventStore) storedIDs(ctx context.Context, storeID string, ids []string) (map[string]struct{}, error) {
	var rows []struct {
		ID string `ch:"id"`
	}
	if err := s.DB.Conn.Select(ctx, &rows, `SELECT DISTINCT id FROM session_events WHERE store_id = ? AND has(?, id)`, storeID, ids); err != nil {
		return nil, fmt.Errorf("failed to look up existing event ids: %w", err)
	}
	out := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		out[r.ID] = struct{}{}
	}
	return out, nil
}

// Append inserts the events whose ids are not stored yet and returns how
// many that was. The ReplacingMergeTree key still collapses rows that race
// past the id check.
func (s *ClickHouseEventStore) Append(ctx context.Context, events []models.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	stored := map[string]map[string]struct{}{}
	for storeID, ids := range idsByStore(events) {
		known, err := s.storedIDs(ctx, storeID, ids)
		if err != nil {
			return 0, err
		}
		stored[storeID] = known
	}
	events = freshEvents(events, stored)
	if len(events) == 0 {
		return 0, nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `INSERT INTO session_events (`+eventColumns+`)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	appended := 0
	for _, e := range events {
		data := "{}"
		if len(e.Data) > 0 {
			data = string(e.Data)
		}
		err := batch.Append(
			e.ID,
			e.StoreID,
			e.ShopperNumber,
			e.ClientID,
			e.SessionID,
			e.EventTS,
			e.ServerTS,
			e.EventName,
			e.PagePath,
			e.PageURL,
			e.CheckoutStep,
			e.ProductID,
			e.VariantID,
			e.UTMSource,
			e.UTMCampaign,
			e.DeviceType,
			e.CountryCode,
			data,
		)
		if err != nil {
			log.Printf("Error appending event to batch (id: %s): %v", e.ID, err)
			continue
		}
		appended++
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}

	log.Debugf("Inserted %d session events.", appended)
	return appended, nil
}

func (s *ClickHouseEventStore) selectEvents(ctx context.Context, where string, order string, args ...any) ([]models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_events FINAL WHERE %s ORDER BY %s`, eventColumns, where, order)
	var rows []eventRow
	if err := s.DB.Conn.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	out := make([]models.Event, len(rows))
	for i := range rows {
		out[i] = rows[i].event()
	}
	return out, nil
}

// rangeClause builds the server_ts bounds; a zero to leaves it open.
func rangeClause(conds []string, args []any, from, to time.Time) ([]string, []any) {
	conds = append(conds, "server_ts >= ?")
	args = append(args, from)
	if !to.IsZero() {
		conds = append(conds, "server_ts < ?")
		args = append(args, to)
	}
	return conds, args
}

func (s *ClickHouseEventStore) ScanRange(ctx context.Context, storeID string, from, to time.Time) ([]models.Event, error) {
	conds, args := rangeClause([]string{"store_id = ?"}, []any{storeID}, from, to)
	return s.selectEvents(ctx, strings.Join(conds, " AND "), "server_ts ASC, id ASC", args...)
}

func (s *ClickHouseEventStore) ScanSession(ctx context.Context, storeID, sessionID string, from, to time.Time) ([]models.Event, error) {
	conds, args := rangeClause([]string{"store_id = ?", "session_id = ?"}, []any{storeID, sessionID}, from, to)
	return s.selectEvents(ctx, strings.Join(conds, " AND "), "server_ts ASC, id ASC", args...)
}

func (s *ClickHouseEventStore) Recent(ctx context.Context, storeID string, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.selectEvents(ctx, "store_id = ?", fmt.Sprintf("server_ts DESC, id DESC LIMIT %d", limit), storeID)
}

func (s *ClickHouseEventStore) ListDays(ctx context.Context, storeID string, limit int) ([]models.DaySummary, error) {
	if limit <= 0 {
		limit = 30
	}
	query := `
		SELECT toString(toDate(server_ts)) AS day, uniqExact(session_id) AS sessions, count() AS events
		FROM session_events FINAL
		WHERE store_id = ?
		GROUP BY day
		ORDER BY day DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, storeID, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query days: %w", err)
	}
	defer rows.Close()

	var results []models.DaySummary
	for rows.Next() {
		var d models.DaySummary
		if err := rows.Scan(&d.Day, &d.Sessions, &d.Events); err != nil {
			return nil, fmt.Errorf("failed to scan day row: %w", err)
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating day rows: %w", err)
	}
	return results, nil
}

func (s *ClickHouseEventStore) ListStores(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Conn.Query(ctx, `SELECT DISTINCT store_id FROM session_events ORDER BY store_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stores: %w", err)
	}
	defer rows.Close()

	var stores []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan store row: %w", err)
		}
		stores = append(stores, id)
	}
	return stores, rows.Err()
}

// DeleteBefore counts the doomed rows and then runs a synchronous mutation.
// Readers filter by the retention horizon as well, so rows that linger until
// the mutation finishes are never served.
func (s *ClickHouseEventStore) DeleteBefore(ctx context.Context, storeID string, cutoff time.Time) (int64, error) {
	var n uint64
	err := s.DB.Conn.QueryRow(ctx,
		`SELECT count() FROM session_events WHERE store_id = ? AND server_ts < ?`, storeID, cutoff,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired events: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	err = s.DB.Conn.Exec(ctx,
		`ALTER TABLE session_events DELETE WHERE store_id = ? AND server_ts < ? SETTINGS mutations_sync = 1`,
		storeID, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired events: %w", err)
	}
	return int64(n), nil
}
