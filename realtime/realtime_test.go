package realtime

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/api/models"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func event(id, session, name, country string, ago time.Duration) models.Event {
	return models.Event{
		ID:          id,
		StoreID:     "shop-1",
		SessionID:   session,
		EventName:   name,
		ServerTS:    now.Add(-ago),
		CountryCode: models.StringPtr(country),
	}
}

func TestAggregate_FocusBreakdown(t *testing.T) {
	var events []models.Event
	for i := 0; i < 4; i++ {
		e := event(fmt.Sprintf("tr%d", i), fmt.Sprintf("tr-s%d", i), "page_viewed", "TR", time.Minute)
		city := "Istanbul"
		if i == 3 {
			city = "Izmir"
		}
		e.Data = models.RawJSON(map[string]any{"geo": map[string]string{"country": "TR", "region": "Marmara", "city": city}})
		events = append(events, e)
	}
	for i := 0; i < 3; i++ {
		events = append(events, event(fmt.Sprintf("de%d", i), fmt.Sprintf("de-s%d", i), "page_viewed", "DE", time.Minute))
	}

	out := Aggregate(events, Params{Now: now})

	require.NotEmpty(t, out.Breakdowns.Countries)
	assert.Equal(t, models.Counted{Value: "TR", Count: 4}, out.Breakdowns.Countries[0])
	assert.Equal(t, "TR", out.Breakdowns.Focus.Country)
	require.Len(t, out.Breakdowns.Focus.Cities, 2)
	assert.Equal(t, "Istanbul", out.Breakdowns.Focus.Cities[0].Value)
	assert.Equal(t, 3, out.Breakdowns.Focus.Cities[0].Count)
	assert.Equal(t, 7, out.ActiveSessions)
}

func TestAggregate_NoGeoYieldsEmptyFocusArrays(t *testing.T) {
	events := []models.Event{event("e1", "s1", "page_viewed", "DE", time.Minute)}
	out := Aggregate(events, Params{Now: now})
	assert.Equal(t, "DE", out.Breakdowns.Focus.Country)
	assert.NotNil(t, out.Breakdowns.Focus.Regions)
	assert.Empty(t, out.Breakdowns.Focus.Regions)
	assert.Empty(t, out.Breakdowns.Focus.Cities)
}

func TestAggregate_WindowAndKeyEvents(t *testing.T) {
	shopper := int64(7)
	events := []models.Event{
		event("e1", "s1", "product_added_to_cart", "DE", 5*time.Minute),
		event("e2", "s1", "checkout_started", "DE", 4*time.Minute),
		event("e3", "s2", "checkout_completed", "DE", 3*time.Minute),
		event("e4", "s3", "page_viewed", "DE", 2*time.Hour), // outside the window
	}
	events[0].ShopperNumber = &shopper
	events[2].ShopperNumber = &shopper

	out := Aggregate(events, Params{Now: now, WindowMinutes: 30})
	assert.Equal(t, 3, out.Events)
	assert.Equal(t, 2, out.ActiveSessions)
	// s1's first event carries shopper 7, its second falls back to session id
	assert.Equal(t, 2, out.ActiveShoppers)
	assert.Equal(t, models.KeyEvents{ATC: 1, CheckoutStarted: 1, Purchase: 1}, out.KeyEvents)
	require.NotNil(t, out.LastEventAt)
	assert.Equal(t, now.Add(-3*time.Minute), *out.LastEventAt)
}

func TestAggregate_TiesBrokenByRecency(t *testing.T) {
	events := []models.Event{
		event("e1", "s1", "page_viewed", "FR", 10*time.Minute),
		event("e2", "s2", "page_viewed", "AT", time.Minute),
	}
	out := Aggregate(events, Params{Now: now})
	require.Len(t, out.Breakdowns.Countries, 2)
	assert.Equal(t, "AT", out.Breakdowns.Countries[0].Value)
}

func TestAggregate_TopKAndLabels(t *testing.T) {
	var events []models.Event
	for i := 0; i < 12; i++ {
		e := event(fmt.Sprintf("e%d", i), "s1", fmt.Sprintf("custom_%02d", i), "DE", time.Duration(i)*time.Second)
		events = append(events, e)
	}
	out := Aggregate(events, Params{Now: now, TopK: 3})
	require.Len(t, out.Breakdowns.TopEvents, 3)
	// all counts are 1; the most recent (smallest ago) comes first
	assert.Equal(t, "custom_00", out.Breakdowns.TopEvents[0].Value)
	assert.Equal(t, "Custom 00", out.Breakdowns.TopEvents[0].Label)
}

func TestAggregate_IsPure(t *testing.T) {
	events := []models.Event{
		event("e1", "s1", "page_viewed", "DE", time.Minute),
		event("e2", "s2", "page_viewed", "TR", 2*time.Minute),
	}
	a := Aggregate(events, Params{Now: now})
	b := Aggregate(events, Params{Now: now})
	assert.Equal(t, a, b)

	empty := Aggregate(nil, Params{Now: now})
	assert.Nil(t, empty.LastEventAt)
	assert.Equal(t, "", empty.Breakdowns.Focus.Country)
}
