package clarity

import (
	"strings"

	"storepulse/api/utils"
)

const maxSignatureLen = 90

type signatureRule struct {
	needles []string
	label   string
}

// Rules are checked in order; the first rule with a matching needle wins.
var signatureRules = []signatureRule{
	{[]string{"mutationobserver", "observe"}, "Script conflict on page"},
	{[]string{"_autofillcallbackhandler"}, "Autofill script conflict"},
	{[]string{"load failed"}, "External script failed to load"},
	{[]string{"failed to fetch", "networkerror"}, "Network request failed"},
	{[]string{"unexpected end of json"}, "JSON response truncated"},
}

const unknownSignature = "Unknown script error"

// Signature buckets a JS error message. Unmatched messages are their own
// bucket, cut to 90 characters.
func Signature(message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return unknownSignature
	}
	lower := strings.ToLower(msg)
	for _, r := range signatureRules {
		for _, n := range r.needles {
			if strings.Contains(lower, n) {
				return r.label
			}
		}
	}
	return utils.Truncate(msg, maxSignatureLen)
}
