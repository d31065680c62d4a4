package devapi

import (
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/geocoder89/incidentdesk/internal/domain/incident"
)

type signal struct {
	phrase    string
	weight    float64
	indicator string
}

var textSignals = []signal{
	{"password", 0.25, "Asks for a password"},
	{"contraseña", 0.25, "Asks for a password"},
	{"verify your account", 0.2, "Account verification pretext"},
	{"login", 0.1, "Mentions a login page"},
	{"urgent", 0.15, "Creates urgency"},
	{"immediately", 0.1, "Creates urgency"},
	{"suspended", 0.15, "Threatens account suspension"},
	{"invoice", 0.1, "Unexpected invoice"},
	{"wire transfer", 0.25, "Requests a money transfer"},
	{"gift card", 0.25, "Requests gift cards"},
	{"bank", 0.1, "Mentions banking details"},
	{"attachment", 0.1, "Pushes an attachment"},
	{".exe", 0.3, "Executable attachment"},
	{"macro", 0.2, "Asks to enable macros"},
	{"click", 0.05, "Asks to click a link"},
}

var riskyTLDs = map[string]bool{"zip": true, "mov": true, "xyz": true, "top": true, "click": true, "ru": true}

// Analyze is a keyword heuristic standing in for the real model.
func Analyze(req incident.AnalysisRequest) incident.Analysis {
	text := strings.ToLower(req.Description)

	score := 0.0
	seen := map[string]bool{}
	var indicators []string
	add := func(w float64, ind string) {
		score += w
		if !seen[ind] {
			seen[ind] = true
			indicators = append(indicators, ind)
		}
	}

	for _, s := range textSignals {
		if strings.Contains(text, s.phrase) {
			add(s.weight, s.indicator)
		}
	}

	if req.URL != "" {
		for _, s := range urlSignals(req.URL) {
			add(s.weight, s.indicator)
		}
	}

	if score > 1 {
		score = 1
	}
	sort.Strings(indicators)

	level := riskLevel(score)
	return incident.Analysis{
		RiskLevel:        level,
		Confidence:       0.5 + score/2,
		Explanation:      explanation(level, len(indicators)),
		TechnicalContext: "Heuristic keyword and URL analysis.",
		Indicators:       indicators,
		Recommendations:  recommendation(level),
	}
}

func urlSignals(raw string) []signal {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return []signal{{weight: 0.2, indicator: "Malformed link"}}
	}

	var out []signal
	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) != nil {
		out = append(out, signal{weight: 0.3, indicator: "Link points to a raw IP address"})
	}
	if u.Scheme == "http" {
		out = append(out, signal{weight: 0.1, indicator: "Link is not encrypted"})
	}
	if strings.Contains(host, "xn--") {
		out = append(out, signal{weight: 0.25, indicator: "Look-alike (punycode) domain"})
	}
	if strings.Count(host, ".") >= 4 {
		out = append(out, signal{weight: 0.15, indicator: "Deeply nested subdomain"})
	}
	if u.User != nil {
		out = append(out, signal{weight: 0.35, indicator: "Credentials embedded in the link"})
	}
	if i := strings.LastIndex(host, "."); i >= 0 && riskyTLDs[host[i+1:]] {
		out = append(out, signal{weight: 0.2, indicator: "Uncommon top-level domain"})
	}
	return out
}

func riskLevel(score float64) string {
	switch {
	case score >= 0.8:
		return string(incident.SeverityCritical)
	case score >= 0.55:
		return string(incident.SeverityHigh)
	case score >= 0.3:
		return string(incident.SeverityMedium)
	default:
		return string(incident.SeverityLow)
	}
}

func explanation(level string, n int) string {
	if n == 0 {
		return "Nothing in this report matches known phishing patterns."
	}
	return "This looks like a " + level + " risk: " + plural(n, "indicator") + " matched known phishing patterns."
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}

func recommendation(level string) string {
	switch incident.Severity(level) {
	case incident.SeverityCritical, incident.SeverityHigh:
		return "Do not interact with the message. Report it and delete it."
	case incident.SeverityMedium:
		return "Be careful. Verify the sender through another channel before acting."
	default:
		return "No action needed beyond normal caution."
	}
}
