package models

// Rejection explains why one envelope of a batch was not stored.
type Rejection struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// IngestResult is the /track response.
type IngestResult struct {
	Accepted   int         `json:"accepted"`
	Duplicates int         `json:"duplicates"`
	Bots       int         `json:"bots,omitempty"`
	Rejected   []Rejection `json:"rejected"`
}

// TopIssuesReport is the /top-issues response.
type TopIssuesReport struct {
	Day              string        `json:"day"`
	View             string        `json:"view"`
	Mode             string        `json:"mode"`
	TotalSessions    int           `json:"total_sessions"`
	Rows             []TopIssueRow `json:"top_issues"`
	SummaryIssue     *TopIssueRow  `json:"summary_issue,omitempty"`
	RetentionClipped bool          `json:"retention_clipped,omitempty"`
	Stale            bool          `json:"stale,omitempty"`
	Hint             string        `json:"hint,omitempty"`
}

// BriefResult wraps a brief that may not exist yet.
type BriefResult struct {
	Day   string      `json:"day"`
	Brief *DailyBrief `json:"brief"`
	Stale bool        `json:"stale,omitempty"`
	Hint  string      `json:"hint,omitempty"`
}

// SessionFeed is the /sessions-by-day response.
type SessionFeed struct {
	Day      string       `json:"day"`
	Sessions []SessionRow `json:"sessions"`
	Stale    bool         `json:"stale,omitempty"`
	Hint     string       `json:"hint,omitempty"`
}

// EventStream is the /events-by-day response.
type EventStream struct {
	Day       string      `json:"day"`
	SessionID string      `json:"session_id"`
	Events    []EventView `json:"events"`
	Stale     bool        `json:"stale,omitempty"`
	Hint      string      `json:"hint,omitempty"`
}

// SessionAnalysis is the /analyze-session response. Session is nil when the
// requested day is stale.
type SessionAnalysis struct {
	Day     string      `json:"day"`
	Session *SessionRow `json:"session"`
	Stale   bool        `json:"stale,omitempty"`
	Hint    string      `json:"hint,omitempty"`
}

// AnalyzeDayResult reports a bulk enrichment pass.
type AnalyzeDayResult struct {
	Day        string `json:"day"`
	Mode       string `json:"mode"`
	Candidates int    `json:"candidates"`
	Analyzed   int    `json:"analyzed"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Stale      bool   `json:"stale,omitempty"`
	Hint       string `json:"hint,omitempty"`
}

// AnalyzeSessionRequest is the /analyze-session body.
type AnalyzeSessionRequest struct {
	Store       string   `json:"store" binding:"required"`
	SessionID   string   `json:"sessionId" binding:"required"`
	Date        string   `json:"date"`
	Model       string   `json:"model"`
	Temperature *float32 `json:"temperature"`
}

// AnalyzeDayRequest is the /analyze-day body.
type AnalyzeDayRequest struct {
	Store       string   `json:"store" binding:"required"`
	Date        string   `json:"date"`
	Mode        string   `json:"mode"`
	Limit       int      `json:"limit"`
	Model       string   `json:"model"`
	Temperature *float32 `json:"temperature"`
}

// GenerateBriefRequest is the /brief/generate body.
type GenerateBriefRequest struct {
	Store         string   `json:"store" binding:"required"`
	Date          string   `json:"date"`
	Model         string   `json:"model"`
	Temperature   *float32 `json:"temperature"`
	LimitSessions int      `json:"limitSessions"`
}

// VerificationRequest is the /verification body.
type VerificationRequest struct {
	Store    string `json:"store" binding:"required"`
	Type     string `json:"type" binding:"required"`
	Page     string `json:"page"`
	GroupKey string `json:"group_key" binding:"required"`
	Status   string `json:"status" binding:"required"`
}
