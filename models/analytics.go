package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// ShopperKey resolves the visitor identity: shopper_number, then client_id,
// then session_id.
func ShopperKey(shopper *int64, clientID *string, sessionID string) string {
	if shopper != nil {
		return "s:" + strconv.FormatInt(*shopper, 10)
	}
	if clientID != nil && *clientID != "" {
		return "c:" + *clientID
	}
	return "x:" + sessionID
}

// Clarity signal types.
const (
	SignalRageClicks    = "rage_clicks"
	SignalDeadClicks    = "dead_clicks"
	SignalJSErrors      = "js_errors"
	SignalFormInvalid   = "form_invalid"
	SignalScrollDropoff = "scroll_dropoff"
)

// SignalTypes lists clarity types in output order.
var SignalTypes = []string{
	SignalRageClicks,
	SignalDeadClicks,
	SignalJSErrors,
	SignalFormInvalid,
	SignalScrollDropoff,
}

// Verification states.
const (
	VerificationConfirmed     = "confirmed"
	VerificationFalsePositive = "false_positive"
	VerificationUnverified    = "unverified"
	VerificationNotApplicable = "not_applicable"
)

// Verifiable reports whether clusters of type t carry a verification state.
func Verifiable(t string) bool {
	switch t {
	case SignalRageClicks, SignalDeadClicks, SignalJSErrors:
		return true
	}
	return false
}

// ScrollDepth replaces count on scroll_dropoff clusters.
type ScrollDepth struct {
	Reached50     int `json:"reached_50"`
	Reached75     int `json:"reached_75"`
	Reached90     int `json:"reached_90"`
	TotalSessions int `json:"total_sessions"`
}

// ClarityCluster is one friction group.
type ClarityCluster struct {
	Type             string       `json:"type"`
	Page             string       `json:"page"`
	GroupKey         string       `json:"group_key"`
	SessionsAffected int          `json:"sessions_affected"`
	Count            int          `json:"count"`
	Scroll           *ScrollDepth `json:"scroll,omitempty"`
	SampleSessions   []string     `json:"sample_sessions"`
	Verification     string       `json:"verification"`
}

// VerificationKey joins a cluster to its externally held verification state.
func (c *ClarityCluster) VerificationKey() string {
	return VerificationKey(c.Type, c.Page, c.GroupKey)
}

// VerificationKey builds the join key for a (type, page, group_key) triple.
func VerificationKey(typ, page, groupKey string) string {
	return typ + "\x1f" + page + "\x1f" + groupKey
}

// VerificationSummary counts clusters per verification state.
type VerificationSummary struct {
	Confirmed     int `json:"confirmed"`
	FalsePositive int `json:"false_positive"`
	Unverified    int `json:"unverified"`
	NotApplicable int `json:"not_applicable"`
}

// ClarityReport is the /clarity payload.
type ClarityReport struct {
	Day              string              `json:"day"`
	Mode             string              `json:"mode"`
	TotalSessions    int                 `json:"total_sessions"`
	Clusters         []ClarityCluster    `json:"clusters"`
	Verification     VerificationSummary `json:"verification"`
	View             string              `json:"view,omitempty"`
	TopIssues        []TopIssueRow       `json:"top_issues"`
	SummaryIssue     *TopIssueRow        `json:"summary_issue,omitempty"`
	RetentionClipped bool                `json:"retention_clipped,omitempty"`
	Stale            bool                `json:"stale,omitempty"`
	Hint             string              `json:"hint,omitempty"`
}

// FlowStage is one rung of the shop walk.
type FlowStage struct {
	Stage         Stage   `json:"stage"`
	Reached       int     `json:"reached"`
	Dropoffs      int     `json:"dropoffs"`
	AdvanceToNext int     `json:"advance_to_next"`
	P50DwellSec   float64 `json:"p50_dwell_sec"`
	P90DwellSec   float64 `json:"p90_dwell_sec"`
}

// Chip is a dimension value with its session count.
type Chip struct {
	Value    string `json:"value"`
	Sessions int    `json:"sessions"`
}

// DropoffCluster breaks down the sessions that stopped at Stage.
type DropoffCluster struct {
	Stage          Stage    `json:"stage"`
	Dropoffs       int      `json:"dropoffs"`
	Devices        []Chip   `json:"devices"`
	Countries      []Chip   `json:"countries"`
	Campaigns      []Chip   `json:"campaigns"`
	SampleSessions []string `json:"sample_sessions"`
}

// FlowReport is the /flow payload.
type FlowReport struct {
	Day              string           `json:"day"`
	Mode             string           `json:"mode"`
	TotalSessions    int              `json:"total_sessions"`
	Stages           []FlowStage      `json:"stages"`
	Dropoffs         []DropoffCluster `json:"dropoff_clusters"`
	RetentionClipped bool             `json:"retention_clipped,omitempty"`
	Stale            bool             `json:"stale,omitempty"`
	Hint             string           `json:"hint,omitempty"`
}

// TopIssueRow is one ranked friction issue.
type TopIssueRow struct {
	Rank               int      `json:"rank"`
	Type               string   `json:"type"`
	IssueLabel         string   `json:"issue_label"`
	WhereLabel         string   `json:"where_label"`
	SessionsAffected   int      `json:"sessions_affected"`
	HighIntentAffected int      `json:"high_intent_affected"`
	ConfidenceScore    float64  `json:"confidence_score"`
	ConfidenceLabel    string   `json:"confidence_label"`
	VerificationStatus string   `json:"verification_status"`
	ImpactScore        float64  `json:"impact_score"`
	Score              float64  `json:"score"`
	SampleSessions     []string `json:"sample_sessions"`
}

// Counted is a top-K breakdown entry.
type Counted struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
	Count int    `json:"count"`
}

// KeyEvents counts the aliased funnel events in a window.
type KeyEvents struct {
	ATC             int `json:"atc"`
	CheckoutStarted int `json:"checkout_started"`
	Purchase        int `json:"purchase"`
}

// Focus is the geo drill-down for the busiest country.
type Focus struct {
	Country string    `json:"country"`
	Regions []Counted `json:"regions"`
	Cities  []Counted `json:"cities"`
}

// Breakdowns groups the realtime top-K lists.
type Breakdowns struct {
	Countries []Counted `json:"countries"`
	Sources   []Counted `json:"sources"`
	Pages     []Counted `json:"pages"`
	TopEvents []Counted `json:"topEvents"`
	Focus     Focus     `json:"focus"`
}

// Realtime is the /realtime payload.
type Realtime struct {
	WindowMinutes  int        `json:"windowMinutes"`
	ActiveSessions int        `json:"active_sessions"`
	ActiveShoppers int        `json:"active_shoppers"`
	Events         int        `json:"events"`
	KeyEvents      KeyEvents  `json:"keyEvents"`
	Breakdowns     Breakdowns `json:"breakdowns"`
	LastEventAt    *time.Time `json:"lastEventAt"`
}

// StepCount is a checkout step with the number of sessions that stopped there.
type StepCount struct {
	Step     string `json:"step"`
	Sessions int    `json:"sessions"`
}

// ProductInsight summarizes one product over the overview window.
type ProductInsight struct {
	ProductID string `json:"product_id"`
	Views     int    `json:"views"`
	ATC       int    `json:"atc"`
	Purchases int    `json:"purchases"`
}

// Overview is the 24h KPI roll-up.
type Overview struct {
	From            time.Time        `json:"from"`
	To              time.Time        `json:"to"`
	Sessions        int              `json:"sessions"`
	ATC             int              `json:"atc"`
	CheckoutStarted int              `json:"checkout_started"`
	Purchases       int              `json:"purchases"`
	AbandonedATC    int              `json:"abandoned_atc"`
	TopDropoffSteps []StepCount      `json:"top_dropoff_steps"`
	Products        []ProductInsight `json:"product_insights"`
}

// DailyBrief is the cached natural-language brief for a day.
type DailyBrief struct {
	StoreID   string    `json:"store_id"`
	Day       string    `json:"day"`
	Brief     string    `json:"brief"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionInsight is an LLM summary persisted for one session.
type SessionInsight struct {
	StoreID   string    `json:"store_id"`
	Day       string    `json:"day"`
	SessionID string    `json:"session_id"`
	Summary   string    `json:"summary"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of Response.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Retry   bool   `json:"retry,omitempty"`
}

// RawJSON is a convenience for tests and fixtures.
func RawJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
