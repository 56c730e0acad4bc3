// api/models/event.go
package models

import (
	"encoding/json"
	"time"
)

// Checkout steps carried on events and session summaries.
const (
	StepContact  = "contact"
	StepShipping = "shipping"
	StepPayment  = "payment"
	StepReview   = "review"
	StepThankYou = "thank_you"
	StepUnknown  = "unknown"
)

// Device types accepted on the canonical event.
const (
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
	DeviceTablet  = "tablet"
)

// Event is the canonical, immutable storefront signal. Optional fields are nil
// when the pixel did not send them (or they failed coercion).
type Event struct {
	ID            string          `json:"id"`
	StoreID       string          `json:"store_id"`
	ShopperNumber *int64          `json:"shopper_number,omitempty"`
	ClientID      *string         `json:"client_id,omitempty"`
	SessionID     string          `json:"session_id"`
	EventTS       time.Time       `json:"event_ts"`
	ServerTS      time.Time       `json:"server_ts"`
	EventName     string          `json:"event_name"`
	PagePath      *string         `json:"page_path,omitempty"`
	PageURL       *string         `json:"page_url,omitempty"`
	CheckoutStep  *string         `json:"checkout_step,omitempty"`
	ProductID     *string         `json:"product_id,omitempty"`
	VariantID     *string         `json:"variant_id,omitempty"`
	UTMSource     *string         `json:"utm_source,omitempty"`
	UTMCampaign   *string         `json:"utm_campaign,omitempty"`
	DeviceType    *string         `json:"device_type,omitempty"`
	CountryCode   *string         `json:"country_code,omitempty"`
	Data          json.RawMessage `json:"data_json,omitempty"`
}

// Before reports whether e sorts before o in per-session order (server_ts, id).
func (e *Event) Before(o *Event) bool {
	if !e.ServerTS.Equal(o.ServerTS) {
		return e.ServerTS.Before(o.ServerTS)
	}
	return e.ID < o.ID
}

// Envelope is the raw pixel payload before normalization. Timestamps are
// accepted either as RFC3339 strings or unix milliseconds.
type Envelope struct {
	ID            string          `json:"id"`
	StoreID       string          `json:"store_id"`
	ShopperNumber *int64          `json:"shopper_number"`
	ClientID      string          `json:"client_id"`
	SessionID     string          `json:"session_id"`
	EventTS       json.RawMessage `json:"event_ts"`
	ServerTS      json.RawMessage `json:"server_ts"`
	EventName     string          `json:"event_name"`
	PagePath      string          `json:"page_path"`
	PageURL       string          `json:"page_url"`
	CheckoutStep  string          `json:"checkout_step"`
	Step          string          `json:"step"`
	ProductID     string          `json:"product_id"`
	VariantID     string          `json:"variant_id"`
	UTMSource     string          `json:"utm_source"`
	UTMCampaign   string          `json:"utm_campaign"`
	DeviceType    string          `json:"device_type"`
	CountryCode   string          `json:"country_code"`
	Data          json.RawMessage `json:"data_json"`

	// Filled by the ingress handler, never by the pixel.
	UserAgent string `json:"-"`
	ClientIP  string `json:"-"`
}

// EventData is the union of structured attributes the pipeline reads out of
// data_json. Unknown keys are ignored.
type EventData struct {
	TargetKey  string          `json:"target_key,omitempty"`
	Message    string          `json:"message,omitempty"`
	Source     string          `json:"source,omitempty"`
	MaxPercent *float64        `json:"max_percent,omitempty"`
	FieldType  string          `json:"field_type,omitempty"`
	FieldName  string          `json:"field_name,omitempty"`
	Step       string          `json:"step,omitempty"`
	Cart       json.RawMessage `json:"cart,omitempty"`
	Geo        *Geo            `json:"geo,omitempty"`
}

// Geo is the optional location block attached by the pixel or by ingress
// enrichment.
type Geo struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// ParseData decodes data_json. Malformed payloads decode to the zero value.
func (e *Event) ParseData() EventData {
	var d EventData
	if len(e.Data) == 0 {
		return d
	}
	_ = json.Unmarshal(e.Data, &d)
	return d
}

// EventView is the read-side shape of an event returned by the feed
// endpoints, with the display label resolved.
type EventView struct {
	Event
	Label string `json:"label"`
}

// DaySummary is one row of the /days listing.
type DaySummary struct {
	Day      string `json:"day"`
	Sessions uint64 `json:"sessions"`
	Events   uint64 `json:"events"`
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
