package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/api/models"
)

// fakeResult implements sql.Result for tests.
type fakeResult struct {
	rowsAffected int64
}

func (f *fakeResult) LastInsertId() (int64, error) { return 0, errors.New("not implemented") }
func (f *fakeResult) RowsAffected() (int64, error) { return f.rowsAffected, nil }

// fakeRow scans fixed values into the destinations.
type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

// fakeRows iterates over fixed rows.
type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error { return assign(dest, r.rows[r.i-1]) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close() error           { return nil }

func assign(dest, values []any) error {
	if len(dest) != len(values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = values[i].(string)
		case *int64:
			*p = values[i].(int64)
		case *time.Time:
			*p = values[i].(time.Time)
		default:
			return errors.New("unsupported scan type")
		}
	}
	return nil
}

// fakeDB implements DB for tests.
type fakeDB struct {
	ExecFn     func(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryFn    func(ctx context.Context, query string, args ...any) (RowScanner, error)
	QueryRowFn func(ctx context.Context, query string, args ...any) Row
	lastQuery  string
	lastArgs   []any
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.lastQuery, f.lastArgs = query, args
	if f.ExecFn != nil {
		return f.ExecFn(ctx, query, args...)
	}
	return &fakeResult{rowsAffected: 1}, nil
}

func (f *fakeDB) QueryContext(ctx context.Context, query string, args ...any) (RowScanner, error) {
	f.lastQuery, f.lastArgs = query, args
	return f.QueryFn(ctx, query, args...)
}

func (f *fakeDB) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	f.lastQuery, f.lastArgs = query, args
	return f.QueryRowFn(ctx, query, args...)
}

// ------------------------------------------------------------
// shoppers
// ------------------------------------------------------------

func TestShopperNumberStore_Resolve(t *testing.T) {
	db := &fakeDB{
		QueryRowFn: func(ctx context.Context, query string, args ...any) Row {
			return &fakeRow{values: []any{int64(42)}}
		},
	}
	n, err := NewShopperNumberStore(db).Resolve(context.Background(), "shop", "client-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Contains(t, db.lastQuery, "ON CONFLICT (store_id, client_id)")
	assert.Equal(t, []any{"shop", "client-1"}, db.lastArgs)
}

func TestShopperNumberStore_Error(t *testing.T) {
	db := &fakeDB{
		QueryRowFn: func(ctx context.Context, query string, args ...any) Row {
			return &fakeRow{err: errors.New("db error")}
		},
	}
	_, err := NewShopperNumberStore(db).Resolve(context.Background(), "shop", "client-1")
	assert.Error(t, err)
}

// ------------------------------------------------------------
// verifications
// ------------------------------------------------------------

func TestVerificationTable_Verifications(t *testing.T) {
	db := &fakeDB{
		QueryFn: func(ctx context.Context, query string, args ...any) (RowScanner, error) {
			if !strings.Contains(query, "FROM cluster_verifications") {
				t.Fatalf("unexpected query: %s", query)
			}
			return &fakeRows{rows: [][]any{
				{models.SignalJSErrors, "/", "Load failed", models.VerificationConfirmed},
			}}, nil
		},
	}
	got, err := NewVerificationTable(db).Verifications(context.Background(), "shop")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		models.VerificationKey(models.SignalJSErrors, "/", "Load failed"): models.VerificationConfirmed,
	}, got)
}

func TestVerificationTable_Set(t *testing.T) {
	db := &fakeDB{}
	err := NewVerificationTable(db).SetVerification(context.Background(), "shop", models.SignalRageClicks, "/cart", "#pay", models.VerificationFalsePositive)
	require.NoError(t, err)
	assert.Len(t, db.lastArgs, 5)
}

// ------------------------------------------------------------
// insights
// ------------------------------------------------------------

func TestInsightTable_BriefMissing(t *testing.T) {
	db := &fakeDB{
		QueryRowFn: func(ctx context.Context, query string, args ...any) Row {
			return &fakeRow{err: sql.ErrNoRows}
		},
	}
	b, err := NewInsightTable(db).Brief(context.Background(), "shop", "2026-03-14")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestInsightTable_SessionInsights(t *testing.T) {
	created := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{
		QueryFn: func(ctx context.Context, query string, args ...any) (RowScanner, error) {
			return &fakeRows{rows: [][]any{{"s1", "Stalled at shipping", "gpt-4o-mini", created}}}, nil
		},
	}
	got, err := NewInsightTable(db).SessionInsights(context.Background(), "shop", "2026-03-14")
	require.NoError(t, err)
	require.Contains(t, got, "s1")
	assert.Equal(t, "Stalled at shipping", got["s1"].Summary)
	assert.Equal(t, "shop", got["s1"].StoreID)
}

func TestInsightTable_SaveErrorIsWrapped(t *testing.T) {
	db := &fakeDB{
		ExecFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			return nil, errors.New("db error")
		},
	}
	err := NewInsightTable(db).SaveBrief(context.Background(), models.DailyBrief{StoreID: "shop", Day: "2026-03-14"})
	assert.ErrorContains(t, err, "failed to save brief")
}
