package models

import (
	"encoding/json"
	"time"
)

// Stage is a rung on the funnel ladder. The zero value is StageLanding and
// stages compare in ladder order.
type Stage int

const (
	StageLanding Stage = iota
	StageProduct
	StageATC
	StageCart
	StageCheckoutContact
	StageCheckoutShipping
	StageCheckoutPayment
	StagePurchase
)

var stageNames = [...]string{
	"landing",
	"product",
	"atc",
	"cart",
	"checkout_contact",
	"checkout_shipping",
	"checkout_payment",
	"purchase",
}

// Ladder lists every stage in ladder order.
var Ladder = []Stage{
	StageLanding,
	StageProduct,
	StageATC,
	StageCart,
	StageCheckoutContact,
	StageCheckoutShipping,
	StageCheckoutPayment,
	StagePurchase,
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Terminal reports whether s is the last rung.
func (s Stage) Terminal() bool { return s == StagePurchase }

// Next returns the following rung; the terminal stage returns itself.
func (s Stage) Next() Stage {
	if s.Terminal() {
		return s
	}
	return s + 1
}

func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Stage) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	st, _ := ParseStage(name)
	*s = st
	return nil
}

// ParseStage maps a stage name back to its rung.
func ParseStage(name string) (Stage, bool) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return StageLanding, false
}

// StagePromotion records the first time a session was classified at Stage.
// Skipped rungs were jumped over in a single event and were never occupied.
type StagePromotion struct {
	Stage   Stage     `json:"stage"`
	At      time.Time `json:"at"`
	Skipped bool      `json:"skipped,omitempty"`
}

// SessionSummary is the per (store, utc day, session) rollup.
type SessionSummary struct {
	StoreID   string `json:"store_id"`
	Day       string `json:"day"`
	SessionID string `json:"session_id"`

	ProductViews          int `json:"product_views"`
	CartEvents            int `json:"cart_events"`
	ATCEvents             int `json:"atc_events"`
	CheckoutStartedEvents int `json:"checkout_started_events"`
	PurchaseEvents        int `json:"purchase_events"`
	TotalEvents           int `json:"total_events"`

	FirstSeen  time.Time  `json:"first_seen"`
	LastSeen   time.Time  `json:"last_seen"`
	ATCAt      *time.Time `json:"atc_at,omitempty"`
	PurchaseAt *time.Time `json:"purchase_at,omitempty"`

	LastCheckoutStep     *string         `json:"last_checkout_step,omitempty"`
	FurthestCheckoutStep *string         `json:"furthest_checkout_step,omitempty"`
	LastCartJSON         json.RawMessage `json:"last_cart_json,omitempty"`
	LastPagePath         *string         `json:"last_page_path,omitempty"`

	DeviceType    *string `json:"device_type,omitempty"`
	CountryCode   *string `json:"country_code,omitempty"`
	UTMSource     *string `json:"utm_source,omitempty"`
	UTMCampaign   *string `json:"utm_campaign,omitempty"`
	ShopperNumber *int64  `json:"shopper_number,omitempty"`
	ClientID      *string `json:"client_id,omitempty"`

	InferredStage Stage            `json:"inferred_stage"`
	Timeline      []StagePromotion `json:"timeline,omitempty"`
}

// HighIntent reports an ATC or checkout start in the session.
func (s *SessionSummary) HighIntent() bool {
	return s.ATCEvents > 0 || s.CheckoutStartedEvents > 0
}

// HighIntentNoPurchase is the filter used by the high intent views.
func (s *SessionSummary) HighIntentNoPurchase() bool {
	return s.HighIntent() && s.PurchaseEvents == 0
}

// SessionRow is a session summary decorated for the feed endpoints.
type SessionRow struct {
	SessionSummary
	Abandoned bool   `json:"abandoned"`
	AISummary string `json:"ai_summary,omitempty"`
	AIModel   string `json:"ai_model,omitempty"`
}
