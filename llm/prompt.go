package llm

import (
	"fmt"
	"strings"

	"storepulse/api/models"
	"storepulse/api/normalizer"
)

const maxPromptEvents = 60

// SessionPrompt describes one session and its event stream.
func SessionPrompt(s *models.SessionSummary, events []models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s on %s reached stage %s.\n", s.SessionID, s.Day, s.InferredStage)
	fmt.Fprintf(&b, "Counters: product_views=%d atc=%d cart=%d checkout_started=%d purchases=%d.\n",
		s.ProductViews, s.ATCEvents, s.CartEvents, s.CheckoutStartedEvents, s.PurchaseEvents)
	if s.LastCheckoutStep != nil {
		fmt.Fprintf(&b, "Last checkout step: %s.\n", *s.LastCheckoutStep)
	}
	dims := []string{}
	for _, d := range []struct {
		name string
		v    *string
	}{{"device", s.DeviceType}, {"country", s.CountryCode}, {"source", s.UTMSource}, {"campaign", s.UTMCampaign}} {
		if d.v != nil {
			dims = append(dims, d.name+"="+*d.v)
		}
	}
	if len(dims) > 0 {
		fmt.Fprintf(&b, "Dimensions: %s.\n", strings.Join(dims, " "))
	}

	b.WriteString("Events:\n")
	for i, e := range events {
		if i == maxPromptEvents {
			fmt.Fprintf(&b, "... %d more events\n", len(events)-maxPromptEvents)
			break
		}
		fmt.Fprintf(&b, "- %s %s", e.ServerTS.Format("15:04:05"), normalizer.Label(e.EventName))
		if e.PagePath != nil {
			fmt.Fprintf(&b, " %s", *e.PagePath)
		}
		b.WriteByte('\n')
	}
	b.WriteString("In two sentences, say what the shopper tried to do and where they got stuck.")
	return b.String()
}

// BriefPrompt describes a day through its flow and top issues.
func BriefPrompt(day string, flow models.FlowReport, issues []models.TopIssueRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Store day %s, %d sessions.\nFunnel:\n", day, flow.TotalSessions)
	for _, st := range flow.Stages {
		fmt.Fprintf(&b, "- %s: reached %d, dropped %d\n", st.Stage, st.Reached, st.Dropoffs)
	}
	if len(issues) > 0 {
		b.WriteString("Top issues:\n")
		for i, r := range issues {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "- #%d %s at %s: %d high-intent sessions affected, confidence %s, %s\n",
				r.Rank, r.IssueLabel, r.WhereLabel, r.HighIntentAffected, r.ConfidenceLabel, r.VerificationStatus)
		}
	}
	b.WriteString("Write a three bullet brief for the merchant: what happened, the biggest leak, and one fix to try.")
	return b.String()
}
