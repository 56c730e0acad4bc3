// Package normalizer turns raw pixel envelopes into canonical events.
package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"storepulse/api/apperr"
	"storepulse/api/models"
)

var (
	checkoutPath = regexp.MustCompile(`^/checkouts/`)
	localeCode   = regexp.MustCompile(`^[A-Za-z]{2}$`)
	countryCode  = regexp.MustCompile(`^[A-Z]{2}$`)

	// namespace for ids derived from envelopes that arrive without one
	eventNamespace = uuid.MustParse("5b0d3c4e-8a8f-4a5e-9c53-6f1b2a7d9e10")
)

// GeoLookup resolves a client IP to a location.
type GeoLookup interface {
	Lookup(ip string) (*models.Geo, bool)
}

// Normalizer validates and canonicalizes envelopes. It holds no mutable state
// and is safe for concurrent use.
type Normalizer struct {
	geo GeoLookup
}

type Option func(*Normalizer)

// WithGeoLookup enables country/region/city fallback from the client IP.
func WithGeoLookup(g GeoLookup) Option {
	return func(n *Normalizer) { n.geo = g }
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize validates required fields and returns the canonical event.
// Failures are apperr validation errors.
func (n *Normalizer) Normalize(env models.Envelope) (models.Event, error) {
	const op = "normalize"

	storeID := strings.TrimSpace(env.StoreID)
	sessionID := strings.TrimSpace(env.SessionID)
	name := CanonicalName(env.EventName)

	switch {
	case storeID == "":
		return models.Event{}, apperr.Validation(op, "store_id is required")
	case sessionID == "":
		return models.Event{}, apperr.Validation(op, "session_id is required")
	case name == "":
		return models.Event{}, apperr.Validation(op, "event_name is required")
	}

	serverTS, ok, err := parseTimestamp(env.ServerTS)
	if err != nil {
		return models.Event{}, apperr.Validation(op, "server_ts: "+err.Error())
	}
	if !ok {
		return models.Event{}, apperr.Validation(op, "server_ts is required")
	}
	eventTS, ok, err := parseTimestamp(env.EventTS)
	if err != nil || !ok {
		eventTS = serverTS
	}

	data := parseData(env.Data)

	pageURL := strings.TrimSpace(env.PageURL)
	pagePath := NormalizePath(env.PagePath, pageURL)

	e := models.Event{
		ID:            strings.TrimSpace(env.ID),
		StoreID:       storeID,
		ShopperNumber: env.ShopperNumber,
		ClientID:      models.StringPtr(strings.TrimSpace(env.ClientID)),
		SessionID:     sessionID,
		EventTS:       eventTS,
		ServerTS:      serverTS,
		EventName:     name,
		PagePath:      models.StringPtr(pagePath),
		PageURL:       models.StringPtr(pageURL),
		ProductID:     models.StringPtr(strings.TrimSpace(env.ProductID)),
		VariantID:     models.StringPtr(strings.TrimSpace(env.VariantID)),
		UTMSource:     models.StringPtr(strings.ToLower(strings.TrimSpace(env.UTMSource))),
		UTMCampaign:   models.StringPtr(strings.TrimSpace(env.UTMCampaign)),
		DeviceType:    CoerceDevice(env.DeviceType),
	}

	step := CheckoutStep(
		firstNonEmpty(env.CheckoutStep, env.Step, stringField(data, "step")),
		env.EventName, pagePath, pageURL,
	)
	e.CheckoutStep = models.StringPtr(step)

	if e.DeviceType == nil && env.UserAgent != "" {
		e.DeviceType = DeviceFromUserAgent(env.UserAgent)
	}

	e.CountryCode = CoerceCountry(env.CountryCode)
	geo := geoField(data)
	if geo == nil && n.geo != nil && env.ClientIP != "" {
		if g, found := n.geo.Lookup(env.ClientIP); found {
			geo = g
			data["geo"] = g
		}
	}
	if e.CountryCode == nil && geo != nil {
		e.CountryCode = CoerceCountry(geo.Country)
	}

	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return models.Event{}, apperr.Validation(op, "data_json is not serializable")
		}
		e.Data = raw
	}

	if e.ID == "" {
		e.ID = deriveID(&e)
	}
	return e, nil
}

// NormalizePath returns a clean path: derived from pageURL when path is
// empty, query and fragment removed, a leading two-letter locale stripped.
func NormalizePath(path, pageURL string) string {
	p := strings.TrimSpace(path)
	if p == "" && pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil {
			p = u.Path
		}
	}
	if p == "" {
		return ""
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return StripLocale(p)
}

// StripLocale removes a leading two-letter segment: /tr/products/x -> /products/x.
func StripLocale(p string) string {
	rest := strings.TrimPrefix(p, "/")
	first, tail, _ := strings.Cut(rest, "/")
	if !localeCode.MatchString(first) {
		return p
	}
	return "/" + tail
}

// CheckoutStep derives the step from, in order: an explicit hint, the event
// name, a /checkouts/ path, and a ?step= query on the page url. Non-checkout
// events without a hint return "".
func CheckoutStep(hint, eventName, pagePath, pageURL string) string {
	if s := canonicalStep(hint); s != "" {
		return s
	}
	if s, ok := nameStepHints[strings.ToLower(strings.TrimSpace(eventName))]; ok {
		return s
	}
	if !checkoutPath.MatchString(pagePath) {
		return ""
	}
	segs := strings.Split(strings.Trim(pagePath, "/"), "/")
	for i := len(segs) - 1; i > 0; i-- {
		if s := canonicalStep(segs[i]); s != "" {
			return s
		}
	}
	if u, err := url.Parse(pageURL); err == nil && pageURL != "" {
		if s := canonicalStep(u.Query().Get("step")); s != "" {
			return s
		}
	}
	return models.StepUnknown
}

func canonicalStep(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "contact", "contact_information", "information":
		return models.StepContact
	case "shipping", "shipping_method", "delivery":
		return models.StepShipping
	case "payment", "payment_method":
		return models.StepPayment
	case "review", "processing":
		return models.StepReview
	case "thank_you", "thank-you", "thankyou":
		return models.StepThankYou
	case "unknown":
		return models.StepUnknown
	}
	return ""
}

// CoerceDevice maps free-form device strings onto mobile/desktop/tablet.
func CoerceDevice(raw string) *string {
	var d string
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mobile", "phone", "smartphone":
		d = models.DeviceMobile
	case "desktop", "pc", "laptop":
		d = models.DeviceDesktop
	case "tablet", "ipad":
		d = models.DeviceTablet
	default:
		return nil
	}
	return &d
}

// CoerceCountry uppercases and validates an ISO-3166 alpha-2 code.
func CoerceCountry(raw string) *string {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if c == "UK" {
		c = "GB"
	}
	if !countryCode.MatchString(c) {
		return nil
	}
	return &c
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false, err
		}
		if s == "" {
			return time.Time{}, false, nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), true, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromUnix(n), true, nil
		}
		return time.Time{}, false, fmt.Errorf("unrecognized timestamp %q", s)
	}
	n, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("unrecognized timestamp %s", raw)
	}
	return fromUnix(int64(n)), true, nil
}

// fromUnix accepts seconds or milliseconds.
func fromUnix(n int64) time.Time {
	if n > 1e12 || n < -1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func parseData(raw json.RawMessage) map[string]any {
	data := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return data
	}
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return map[string]any{}
	}
	return data
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func geoField(data map[string]any) *models.Geo {
	m, ok := data["geo"].(map[string]any)
	if !ok {
		return nil
	}
	g := &models.Geo{}
	g.Country, _ = m["country"].(string)
	g.Region, _ = m["region"].(string)
	g.City, _ = m["city"].(string)
	if g.Country == "" && g.Region == "" && g.City == "" {
		return nil
	}
	return g
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// deriveID gives envelopes without an id a stable one, so a retried batch
// stays idempotent in the store.
func deriveID(e *models.Event) string {
	key := strings.Join([]string{
		e.StoreID,
		e.SessionID,
		e.EventName,
		strconv.FormatInt(e.ServerTS.UnixNano(), 10),
		strconv.FormatInt(e.EventTS.UnixNano(), 10),
		models.Deref(e.PagePath),
		string(e.Data),
	}, "|")
	return uuid.NewSHA1(eventNamespace, []byte(key)).String()
}
