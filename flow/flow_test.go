package flow

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/api/apperr"
	"storepulse/api/models"
	"storepulse/api/rollup"
)

const day = "2026-03-14"

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func ev(session, name string, offset time.Duration, opts ...func(*models.Event)) models.Event {
	return applyOpts(models.Event{
		ID:        fmt.Sprintf("%s-%s-%d", session, name, offset),
		StoreID:   "shop-1",
		SessionID: session,
		EventName: name,
		ServerTS:  t0.Add(offset),
	}, opts)
}

func applyOpts(e models.Event, opts []func(*models.Event)) models.Event {
	for _, o := range opts {
		o(&e)
	}
	return e
}

func device(d string) func(*models.Event) {
	return func(e *models.Event) { e.DeviceType = models.StringPtr(d) }
}

func country(c string) func(*models.Event) {
	return func(e *models.Event) { e.CountryCode = models.StringPtr(c) }
}

func stage(r models.FlowReport, st models.Stage) models.FlowStage {
	for _, s := range r.Stages {
		if s.Stage == st {
			return s
		}
	}
	return models.FlowStage{}
}

func TestCompute_DropoffArithmetic(t *testing.T) {
	events := []models.Event{
		ev("s1", "add_to_cart", 0, device("mobile"), country("TR")),
		ev("s2", "add_to_cart", 0, device("mobile"), country("DE")),
		ev("s2", "cart_viewed", time.Minute),
		ev("s3", "add_to_cart", 0, device("desktop")),
		ev("s3", "view_cart", 2*time.Minute),
	}
	sessions := rollup.Build(day, events)

	r := Compute(sessions, Params{StoreID: "shop-1", Day: day})

	require.Len(t, r.Stages, len(models.Ladder))
	atc := stage(r, models.StageATC)
	assert.Equal(t, 3, atc.Reached)
	assert.Equal(t, 1, atc.Dropoffs)
	assert.Equal(t, 2, atc.AdvanceToNext)
	assert.Equal(t, 2, stage(r, models.StageCart).Dropoffs)
	assert.Equal(t, 0, stage(r, models.StageCheckoutContact).Reached)
	assert.Equal(t, 0, stage(r, models.StagePurchase).Reached)

	// skipped rungs still count as reached
	assert.Equal(t, 3, stage(r, models.StageLanding).Reached)
	assert.Equal(t, 3, stage(r, models.StageProduct).Reached)

	require.Len(t, r.Dropoffs, 2)
	assert.Equal(t, models.StageATC, r.Dropoffs[0].Stage)
	assert.Equal(t, []models.Chip{{Value: "mobile", Sessions: 1}}, r.Dropoffs[0].Devices)
	assert.Equal(t, []string{"s1"}, r.Dropoffs[0].SampleSessions)

	cart := r.Dropoffs[1]
	assert.Equal(t, models.StageCart, cart.Stage)
	// one session each: s3 was seen later, so desktop leads
	assert.Equal(t, "desktop", cart.Devices[0].Value)
	assert.Equal(t, []models.Chip{{Value: "DE", Sessions: 1}}, cart.Countries)
	assert.Empty(t, cart.Campaigns)
}

func TestCompute_HighIntentMode(t *testing.T) {
	events := []models.Event{
		ev("browse", "product_viewed", 0),
		ev("buyer", "add_to_cart", 0),
		ev("buyer", "purchase", time.Minute),
		ev("stuck", "checkout_started", 0),
	}
	r := Compute(rollup.Build(day, events), Params{Day: day, Mode: ModeHighIntentNoPurchase})
	assert.Equal(t, 1, r.TotalSessions)
	assert.Equal(t, 1, stage(r, models.StageCheckoutContact).Reached)
	assert.Equal(t, 1, stage(r, models.StageCheckoutContact).Dropoffs)
}

func TestCompute_Dwell(t *testing.T) {
	events := []models.Event{
		ev("s1", "page_viewed", 0),
		ev("s1", "product_viewed", 10*time.Second),
		ev("s1", "add_to_cart", 40*time.Second),
		ev("s1", "page_viewed", 100*time.Second),
	}
	r := Compute(rollup.Build(day, events), Params{Day: day})
	assert.Equal(t, 10.0, stage(r, models.StageLanding).P50DwellSec)
	assert.Equal(t, 30.0, stage(r, models.StageProduct).P50DwellSec)
	assert.Equal(t, 60.0, stage(r, models.StageATC).P90DwellSec)
	assert.Equal(t, 0.0, stage(r, models.StageCart).P50DwellSec)
}

func TestCompute_DwellCappedAtDayEnd(t *testing.T) {
	late := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	s := models.SessionSummary{
		SessionID:     "s1",
		Day:           day,
		FirstSeen:     late,
		LastSeen:      late.Add(5 * time.Minute),
		InferredStage: models.StageLanding,
		Timeline:      []models.StagePromotion{{Stage: models.StageLanding, At: late}},
	}
	r := Compute([]models.SessionSummary{s}, Params{Day: day})
	assert.Equal(t, 60.0, stage(r, models.StageLanding).P50DwellSec)
}

func TestCompute_SkippedStagesHaveNoDwell(t *testing.T) {
	events := []models.Event{
		ev("s1", "cart_viewed", 0),
		ev("s1", "page_viewed", 20*time.Second),
	}
	r := Compute(rollup.Build(day, events), Params{Day: day})
	assert.Equal(t, 0.0, stage(r, models.StageProduct).P50DwellSec)
	assert.Equal(t, 20.0, stage(r, models.StageCart).P50DwellSec)
}

func TestProperty_FlowAccounting(t *testing.T) {
	names := []string{"page_viewed", "product_viewed", "add_to_cart", "cart_viewed", "checkout_started", "purchase"}
	steps := []string{"", models.StepContact, models.StepShipping, models.StepPayment}
	r := rand.New(rand.NewSource(3))
	var events []models.Event
	for i := 0; i < 300; i++ {
		st := steps[r.Intn(len(steps))]
		events = append(events, ev(fmt.Sprintf("s%02d", r.Intn(40)), names[r.Intn(len(names))], time.Duration(i)*time.Second,
			func(e *models.Event) { e.CheckoutStep = models.StringPtr(st) }))
	}
	report := Compute(rollup.Build(day, events), Params{Day: day, StoreID: "shop-1"})
	for _, s := range report.Stages {
		if s.Stage.Terminal() {
			continue
		}
		next := stage(report, s.Stage.Next())
		assert.Equal(t, s.Reached, next.Reached+s.Dropoffs, s.Stage.String())
		assert.Equal(t, next.Reached, s.AdvanceToNext)
	}
	for _, c := range report.Dropoffs {
		assert.LessOrEqual(t, len(c.SampleSessions), 6)
		assert.LessOrEqual(t, len(c.Devices), 3)
		assert.LessOrEqual(t, len(c.Campaigns), 2)
	}
	assert.Equal(t, report, Compute(rollup.Build(day, events), Params{Day: day, StoreID: "shop-1"}))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, m)

	m, err = ParseMode("high_intent")
	require.NoError(t, err)
	assert.Equal(t, ModeHighIntentNoPurchase, m)

	_, err = ParseMode("everything")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
