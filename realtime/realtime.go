// Package realtime computes the live sliding-window view.
package realtime

import (
	"sort"
	"time"

	"storepulse/api/models"
	"storepulse/api/normalizer"
)

const (
	DefaultWindowMinutes = 30
	DefaultTopK          = 10
)

// Params bound the window.
type Params struct {
	Now           time.Time
	WindowMinutes int
	TopK          int
}

// WindowStart is the inclusive lower bound on server_ts.
func (p Params) WindowStart() time.Time {
	return p.Now.Add(-time.Duration(p.windowMinutes()) * time.Minute)
}

func (p Params) windowMinutes() int {
	if p.WindowMinutes <= 0 {
		return DefaultWindowMinutes
	}
	return p.WindowMinutes
}

func (p Params) topK() int {
	if p.TopK <= 0 {
		return DefaultTopK
	}
	return p.TopK
}

// tally counts values and remembers when each was last seen.
type tally struct {
	count  map[string]int
	last   map[string]time.Time
	unique map[string]map[string]struct{}
}

func newTally() *tally {
	return &tally{
		count:  map[string]int{},
		last:   map[string]time.Time{},
		unique: map[string]map[string]struct{}{},
	}
}

func (t *tally) seen(value string, ts time.Time) {
	if ts.After(t.last[value]) {
		t.last[value] = ts
	}
}

func (t *tally) add(value string, ts time.Time) {
	t.count[value]++
	t.seen(value, ts)
}

// addDistinct counts value once per key.
func (t *tally) addDistinct(value, key string, ts time.Time) {
	set, ok := t.unique[value]
	if !ok {
		set = map[string]struct{}{}
		t.unique[value] = set
	}
	if _, dup := set[key]; !dup {
		set[key] = struct{}{}
		t.count[value]++
	}
	t.seen(value, ts)
}

// top returns the k largest counts; ties go to the most recently seen value,
// then the alphabetically smaller one.
func (t *tally) top(k int, label func(string) string) []models.Counted {
	out := make([]models.Counted, 0, len(t.count))
	for v, c := range t.count {
		item := models.Counted{Value: v, Count: c}
		if label != nil {
			item.Label = label(v)
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		li, lj := t.last[out[i].Value], t.last[out[j].Value]
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

// Aggregate is a pure function of the events with server_ts >= now-window.
// Older events are ignored, so callers may pass a superset.
func Aggregate(events []models.Event, p Params) models.Realtime {
	start := p.WindowStart()
	k := p.topK()

	out := models.Realtime{WindowMinutes: p.windowMinutes()}

	sessions := map[string]struct{}{}
	shoppers := map[string]struct{}{}
	countries, sources, pages, names := newTally(), newTally(), newTally(), newTally()
	regions := map[string]*tally{}
	cities := map[string]*tally{}

	var last time.Time
	for i := range events {
		e := &events[i]
		if e.ServerTS.Before(start) {
			continue
		}
		out.Events++
		sessions[e.SessionID] = struct{}{}
		shoppers[models.ShopperKey(e.ShopperNumber, e.ClientID, e.SessionID)] = struct{}{}
		if e.ServerTS.After(last) {
			last = e.ServerTS
		}

		switch normalizer.Classify(e.EventName) {
		case normalizer.KindATC:
			out.KeyEvents.ATC++
		case normalizer.KindCheckoutStart:
			out.KeyEvents.CheckoutStarted++
		case normalizer.KindPurchase:
			out.KeyEvents.Purchase++
		}

		if e.CountryCode != nil {
			countries.addDistinct(*e.CountryCode, e.SessionID, e.ServerTS)
		}
		if e.UTMSource != nil {
			sources.addDistinct(*e.UTMSource, e.SessionID, e.ServerTS)
		}
		if e.PagePath != nil {
			pages.add(*e.PagePath, e.ServerTS)
		}
		names.add(e.EventName, e.ServerTS)

		if geo := e.ParseData().Geo; geo != nil {
			country := models.Deref(e.CountryCode)
			if country == "" {
				country = geo.Country
			}
			if geo.Region != "" {
				tallyFor(regions, country).addDistinct(geo.Region, e.SessionID, e.ServerTS)
			}
			if geo.City != "" {
				tallyFor(cities, country).addDistinct(geo.City, e.SessionID, e.ServerTS)
			}
		}
	}

	out.ActiveSessions = len(sessions)
	out.ActiveShoppers = len(shoppers)
	out.Breakdowns = models.Breakdowns{
		Countries: countries.top(k, nil),
		Sources:   sources.top(k, nil),
		Pages:     pages.top(k, nil),
		TopEvents: names.top(k, normalizer.Label),
		Focus:     models.Focus{Regions: []models.Counted{}, Cities: []models.Counted{}},
	}
	if len(out.Breakdowns.Countries) > 0 {
		focus := out.Breakdowns.Countries[0].Value
		out.Breakdowns.Focus.Country = focus
		if t, ok := regions[focus]; ok {
			out.Breakdowns.Focus.Regions = t.top(k, nil)
		}
		if t, ok := cities[focus]; ok {
			out.Breakdowns.Focus.Cities = t.top(k, nil)
		}
	}
	if !last.IsZero() {
		out.LastEventAt = &last
	}
	return out
}

func tallyFor(m map[string]*tally, key string) *tally {
	t, ok := m[key]
	if !ok {
		t = newTally()
		m[key] = t
	}
	return t
}
