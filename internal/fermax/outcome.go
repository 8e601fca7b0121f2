package fermax

import "strings"

// Classification is the inferred result of a door-open command. The
// Blue backend answers with free text whose wording depends on locale
// and firmware, so a 200 alone proves nothing.
type Classification string

const (
	Success   Classification = "success"
	Failure   Classification = "failure"
	Ambiguous Classification = "ambiguous"
)

// Outcome is the classified result of one door-open command. It is
// produced per call and never persisted.
type Outcome struct {
	Classification Classification `json:"classification"`
	RawText        string         `json:"raw_text,omitempty"`
	HTTPStatus     int            `json:"http_status,omitempty"`
}

// softFailureStatuses are statuses whose body still carries a usable
// verdict; anything else outside 2xx is a hard failure.
var softFailureStatuses = map[int]bool{
	400: true,
	401: true,
	403: true,
	409: true,
}

// localeKeywords holds the per-locale response vocabulary. The
// vendor's wording is not contractually stable, so these are substring
// sets rather than exact matches, and new locales or wording changes
// are additive entries, not logic changes.
type localeKeywords struct {
	locale  string
	success []string
	failure []string
}

var responseKeywords = []localeKeywords{
	{
		locale:  "en",
		success: []string{"ok", "open", "success", "granted"},
		failure: []string{"ko", "error", "fail", "denied", "rejected"},
	},
	{
		locale:  "es",
		success: []string{"puerta abierta", "abierta", "abierto", "correctamente", "concedido"},
		failure: []string{"cerrada", "bloqueada", "denegado", "rechazado"},
	},
}

// Classify maps a raw command response to an Outcome classification.
// Success keywords win over failure keywords; unmatched text is
// Ambiguous, never a guessed Success, since the command may well have
// succeeded server-side and over-reporting failure misleads the user.
func Classify(status int, body string) Classification {
	if (status < 200 || status >= 300) && !softFailureStatuses[status] {
		return Failure
	}

	text := strings.ToLower(body)
	for _, locale := range responseKeywords {
		for _, term := range locale.success {
			if strings.Contains(text, term) {
				return Success
			}
		}
	}
	for _, locale := range responseKeywords {
		for _, term := range locale.failure {
			if strings.Contains(text, term) {
				return Failure
			}
		}
	}
	return Ambiguous
}
