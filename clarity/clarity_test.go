package clarity

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/api/flow"
	"storepulse/api/models"
	"storepulse/api/rollup"
)

const day = "2026-03-14"

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

var seq int

func signal(session, name, page string, data map[string]any) models.Event {
	seq++
	return models.Event{
		ID:        fmt.Sprintf("e%04d", seq),
		StoreID:   "shop-1",
		SessionID: session,
		EventName: name,
		ServerTS:  t0.Add(time.Duration(seq) * time.Second),
		PagePath:  models.StringPtr(page),
		Data:      models.RawJSON(data),
	}
}

func find(cs []models.ClarityCluster, typ, key string) *models.ClarityCluster {
	for i := range cs {
		if cs[i].Type == typ && cs[i].GroupKey == key {
			return &cs[i]
		}
	}
	return nil
}

func TestSignature(t *testing.T) {
	cases := []struct {
		msg, want string
	}{
		{"TypeError: Failed to execute 'observe' on 'MutationObserver'", "Script conflict on page"},
		{"Can't find variable: _AutofillCallbackHandler", "Autofill script conflict"},
		{"Load failed", "External script failed to load"},
		{"TypeError: Failed to fetch", "Network request failed"},
		{"NetworkError when attempting to fetch resource.", "Network request failed"},
		{"SyntaxError: Unexpected end of JSON input", "JSON response truncated"},
		{"", unknownSignature},
		{"ReferenceError: gtag is not defined", "ReferenceError: gtag is not defined"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Signature(c.msg), c.msg)
	}

	long := "ReferenceError: " + strings.Repeat("x", 100)
	assert.Len(t, []rune(Signature(long)), 90)
}

func TestCluster_JSErrorsShareSignature(t *testing.T) {
	events := []models.Event{
		signal("s1", "js_error", "/products/a", map[string]any{"message": "MutationObserver is not defined"}),
		signal("s2", "js_error", "/products/a", map[string]any{"message": "cannot observe target"}),
	}
	cs := Cluster(events, nil, Params{StoreID: "shop-1", Day: day})
	require.Len(t, cs, 1)
	assert.Equal(t, "Script conflict on page", cs[0].GroupKey)
	assert.Equal(t, 2, cs[0].Count)
	assert.Equal(t, 2, cs[0].SessionsAffected)
	assert.ElementsMatch(t, []string{"s1", "s2"}, cs[0].SampleSessions)
}

func TestCluster_ClicksAndForms(t *testing.T) {
	events := []models.Event{
		signal("s1", "rage_click", "/cart", map[string]any{"target_key": "#checkout"}),
		signal("s1", "si_rage_click", "/cart", map[string]any{"target_key": "#checkout"}),
		signal("s2", "rage_click", "/cart", map[string]any{"target_key": "#checkout"}),
		signal("s3", "dead_click", "/", map[string]any{}),
		signal("s3", "form_invalid", "/checkouts/c1", map[string]any{"field_type": "email", "field_name": "contact"}),
		signal("s3", "page_viewed", "/", nil),
	}
	cs := Cluster(events, nil, Params{StoreID: "shop-1", Day: day})
	require.Len(t, cs, 3)

	rage := find(cs, models.SignalRageClicks, "#checkout")
	require.NotNil(t, rage)
	assert.Equal(t, 3, rage.Count)
	assert.Equal(t, 2, rage.SessionsAffected)

	dead := find(cs, models.SignalDeadClicks, unknownTarget)
	require.NotNil(t, dead)
	assert.Equal(t, "/", dead.Page)

	form := find(cs, models.SignalFormInvalid, "email:contact")
	require.NotNil(t, form)
	assert.Equal(t, 1, form.SessionsAffected)

	// output follows type order
	assert.Equal(t, models.SignalRageClicks, cs[0].Type)
	assert.Equal(t, models.SignalFormInvalid, cs[2].Type)
}

func TestCluster_ScrollDepth(t *testing.T) {
	events := []models.Event{
		signal("s1", "scroll_depth", "/", map[string]any{"max_percent": 30}),
		signal("s1", "scroll_depth", "/", map[string]any{"max_percent": 80}),
		signal("s2", "scroll", "/", map[string]any{"max_percent": 95}),
		signal("s3", "scroll_depth", "/", map[string]any{"max_percent": 20}),
	}
	cs := Cluster(events, nil, Params{Day: day})
	require.Len(t, cs, 1)
	c := cs[0]
	require.NotNil(t, c.Scroll)
	assert.Equal(t, models.ScrollDepth{Reached50: 2, Reached75: 2, Reached90: 1, TotalSessions: 3}, *c.Scroll)
	assert.Equal(t, 1, c.SessionsAffected)
	assert.Equal(t, []string{"s3"}, c.SampleSessions)
}

func TestCluster_ReservoirIsBoundedAndStable(t *testing.T) {
	var events []models.Event
	for i := 0; i < 40; i++ {
		events = append(events, signal(fmt.Sprintf("s%02d", i), "dead_click", "/", map[string]any{"target_key": "img"}))
	}
	a := Cluster(events, nil, Params{StoreID: "shop-1", Day: day})
	b := Cluster(events, nil, Params{StoreID: "shop-1", Day: day})
	require.Len(t, a, 1)
	assert.Len(t, a[0].SampleSessions, 5)
	assert.Equal(t, a, b)
}

func TestCompute_ModeAndVerification(t *testing.T) {
	events := []models.Event{
		signal("buyer", "add_to_cart", "/products/a", nil),
		signal("buyer", "js_error", "/products/a", map[string]any{"message": "Load failed"}),
		signal("browser", "js_error", "/", map[string]any{"message": "Failed to fetch"}),
		signal("browser", "scroll_depth", "/", map[string]any{"max_percent": 10}),
	}
	sessions := rollup.Build(day, events)

	v := Verifications{
		models.VerificationKey(models.SignalJSErrors, "/products/a", "External script failed to load"): models.VerificationConfirmed,
	}
	all := Compute(events, sessions, Params{StoreID: "shop-1", Day: day}, v)
	assert.Equal(t, 2, all.TotalSessions)
	require.Len(t, all.Clusters, 3)
	assert.Equal(t, models.VerificationSummary{Confirmed: 1, Unverified: 1, NotApplicable: 1}, all.Verification)
	assert.Equal(t, models.VerificationNotApplicable, find(all.Clusters, models.SignalScrollDropoff, "/").Verification)

	hi := Compute(events, sessions, Params{StoreID: "shop-1", Day: day, Mode: flow.ModeHighIntentNoPurchase}, v)
	assert.Equal(t, 1, hi.TotalSessions)
	require.Len(t, hi.Clusters, 1)
	assert.Equal(t, models.VerificationConfirmed, hi.Clusters[0].Verification)
}
