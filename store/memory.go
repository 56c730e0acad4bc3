package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"storepulse/api/models"
	"storepulse/api/utils"
)

// MemoryEventStore keeps events in process. It backs STORE_BACKEND=memory
// and the service tests.
type MemoryEventStore struct {
	mu     sync.RWMutex
	byID   map[string]struct{}
	events map[string][]models.Event // per store, append order
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		byID:   map[string]struct{}{},
		events: map[string][]models.Event{},
	}
}

func (m *MemoryEventStore) Append(ctx context.Context, events []models.Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range events {
		key := e.StoreID + "\x1f" + e.ID
		if _, dup := m.byID[key]; dup {
			continue
		}
		m.byID[key] = struct{}{}
		m.events[e.StoreID] = append(m.events[e.StoreID], e)
		n++
	}
	return n, nil
}

func (m *MemoryEventStore) scan(ctx context.Context, storeID string, keep func(*models.Event) bool) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Event
	for i := range m.events[storeID] {
		if e := &m.events[storeID][i]; keep(e) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *MemoryEventStore) ScanRange(ctx context.Context, storeID string, from, to time.Time) ([]models.Event, error) {
	out, err := m.scan(ctx, storeID, func(e *models.Event) bool { return inRange(e.ServerTS, from, to) })
	sortEvents(out)
	return out, err
}

func (m *MemoryEventStore) ScanSession(ctx context.Context, storeID, sessionID string, from, to time.Time) ([]models.Event, error) {
	out, err := m.scan(ctx, storeID, func(e *models.Event) bool {
		return e.SessionID == sessionID && inRange(e.ServerTS, from, to)
	})
	sortEvents(out)
	return out, err
}

func (m *MemoryEventStore) Recent(ctx context.Context, storeID string, limit int) ([]models.Event, error) {
	out, err := m.scan(ctx, storeID, func(*models.Event) bool { return true })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[j].Before(&out[i]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryEventStore) ListDays(ctx context.Context, storeID string, limit int) ([]models.DaySummary, error) {
	events, err := m.scan(ctx, storeID, func(*models.Event) bool { return true })
	if err != nil {
		return nil, err
	}
	type acc struct {
		sessions map[string]struct{}
		events   uint64
	}
	days := map[string]*acc{}
	for i := range events {
		d := utils.DayString(events[i].ServerTS)
		a, ok := days[d]
		if !ok {
			a = &acc{sessions: map[string]struct{}{}}
			days[d] = a
		}
		a.events++
		a.sessions[events[i].SessionID] = struct{}{}
	}
	keys := utils.SortedKeys(days)
	out := make([]models.DaySummary, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		a := days[keys[i]]
		out = append(out, models.DaySummary{Day: keys[i], Sessions: uint64(len(a.sessions)), Events: a.events})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryEventStore) ListStores(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return utils.SortedKeys(m.events), nil
}

func (m *MemoryEventStore) DeleteBefore(ctx context.Context, storeID string, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[storeID][:0:0]
	var deleted int64
	for _, e := range m.events[storeID] {
		if e.ServerTS.Before(cutoff) {
			delete(m.byID, e.StoreID+"\x1f"+e.ID)
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		delete(m.events, storeID)
	} else {
		m.events[storeID] = kept
	}
	return deleted, nil
}

func sortEvents(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Before(&events[j]) })
}

// MemoryShopperStore numbers shoppers from 1 in resolve order across stores.
type MemoryShopperStore struct {
	mu   sync.Mutex
	next int64
	ids  map[string]int64
}

func NewMemoryShopperStore() *MemoryShopperStore {
	return &MemoryShopperStore{ids: map[string]int64{}}
}

func (m *MemoryShopperStore) Resolve(ctx context.Context, storeID, clientID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := storeID + "\x1f" + clientID
	if n, ok := m.ids[key]; ok {
		return n, nil
	}
	m.next++
	m.ids[key] = m.next
	return m.next, nil
}

// MemoryVerificationStore keeps verification verdicts in process.
type MemoryVerificationStore struct {
	mu     sync.RWMutex
	states map[string]map[string]string
}

func NewMemoryVerificationStore() *MemoryVerificationStore {
	return &MemoryVerificationStore{states: map[string]map[string]string{}}
}

func (m *MemoryVerificationStore) Verifications(ctx context.Context, storeID string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.states[storeID]))
	for k, v := range m.states[storeID] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryVerificationStore) SetVerification(ctx context.Context, storeID, typ, page, groupKey, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[storeID] == nil {
		m.states[storeID] = map[string]string{}
	}
	m.states[storeID][models.VerificationKey(typ, page, groupKey)] = status
	return nil
}

// MemoryInsightStore keeps LLM output in process.
type MemoryInsightStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]models.SessionInsight // store|day -> session
	briefs   map[string]models.DailyBrief
}

func NewMemoryInsightStore() *MemoryInsightStore {
	return &MemoryInsightStore{
		sessions: map[string]map[string]models.SessionInsight{},
		briefs:   map[string]models.DailyBrief{},
	}
}

func dayKey(storeID, day string) string { return storeID + "\x1f" + day }

func (m *MemoryInsightStore) SaveSessionInsight(ctx context.Context, in models.SessionInsight) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := dayKey(in.StoreID, in.Day)
	if m.sessions[k] == nil {
		m.sessions[k] = map[string]models.SessionInsight{}
	}
	m.sessions[k][in.SessionID] = in
	return nil
}

func (m *MemoryInsightStore) SessionInsights(ctx context.Context, storeID, day string) (map[string]models.SessionInsight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string]models.SessionInsight{}
	for id, in := range m.sessions[dayKey(storeID, day)] {
		out[id] = in
	}
	return out, nil
}

func (m *MemoryInsightStore) SaveBrief(ctx context.Context, b models.DailyBrief) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.briefs[dayKey(b.StoreID, b.Day)] = b
	return nil
}

func (m *MemoryInsightStore) Brief(ctx context.Context, storeID, day string) (*models.DailyBrief, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.briefs[dayKey(storeID, day)]
	if !ok {
		return nil, nil
	}
	return &b, nil
}
