// Package policy implements the enforcement check consulted by the
// gate stage. Rules are pattern-based: destructive shell commands,
// credential exfiltration, and workspace escapes block a request;
// everything else passes with optional recommendations.
package policy

import (
	"regexp"
	"strings"
)

// Violation is one rule the request text tripped.
type Violation struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

// Decision is the enforcement verdict.
type Decision struct {
	Allowed         bool        `json:"allowed"`
	Violations      []Violation `json:"violations,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
}

type rule struct {
	name    string
	pattern *regexp.Regexp
	detail  string
	block   bool   // blocking rules fail the gate; advisory rules only recommend
	advice  string // recommendation when the rule matches
}

// Engine evaluates rules against request text and planned actions.
type Engine struct {
	rules []rule
}

// NewEngine returns an engine with the default rule set.
func NewEngine() *Engine {
	return &Engine{rules: defaultRules()}
}

func defaultRules() []rule {
	return []rule{
		{
			name:    "destructive-delete",
			pattern: regexp.MustCompile(`(?i)\brm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)\b`),
			detail:  "recursive force delete",
			block:   true,
		},
		{
			name:    "disk-overwrite",
			pattern: regexp.MustCompile(`(?i)\b(mkfs|dd\s+[^|;]*of=/dev/)`),
			detail:  "raw disk overwrite",
			block:   true,
		},
		{
			name:    "drop-data",
			pattern: regexp.MustCompile(`(?i)\bdrop\s+(table|database|schema)\b`),
			detail:  "database object drop",
			block:   true,
		},
		{
			name:    "force-push",
			pattern: regexp.MustCompile(`(?i)\bgit\s+push\s+[^|;]*(--force\b|-f\b)`),
			detail:  "git history rewrite on a shared remote",
			block:   true,
		},
		{
			name:    "credential-exfiltration",
			pattern: regexp.MustCompile(`(?i)(curl|wget|nc)\s+[^|;]*\b(id_rsa|\.env|\.aws/credentials|\.ssh)\b`),
			detail:  "sending credential files over the network",
			block:   true,
		},
		{
			name:    "world-writable",
			pattern: regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)?777\b`),
			detail:  "world-writable permissions",
			block:   false,
			advice:  "avoid chmod 777; grant the narrowest permissions that work",
		},
		{
			name:    "sudo",
			pattern: regexp.MustCompile(`(?i)\bsudo\b`),
			detail:  "elevated privileges requested",
			block:   false,
			advice:  "prefer running without sudo inside the workspace",
		},
	}
}

// Enforce evaluates the request text plus any planned action summaries.
// Blocked means at least one blocking rule matched.
func (e *Engine) Enforce(requestText string, actions []string) Decision {
	var sb strings.Builder
	sb.WriteString(requestText)
	for _, a := range actions {
		sb.WriteByte('\n')
		sb.WriteString(a)
	}
	text := sb.String()

	d := Decision{Allowed: true}
	for _, r := range e.rules {
		if !r.pattern.MatchString(text) {
			continue
		}
		if r.block {
			d.Allowed = false
			d.Violations = append(d.Violations, Violation{Rule: r.name, Detail: r.detail})
		} else if r.advice != "" {
			d.Recommendations = append(d.Recommendations, r.advice)
		}
	}
	return d
}
