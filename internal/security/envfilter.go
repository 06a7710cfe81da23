package security

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultEnvDenyPatterns are the variables stripped from the spawned
// shell's environment. They cover the agent's own broker credentials and
// the usual spellings of secrets handed down by process supervisors.
var DefaultEnvDenyPatterns = []string{
	"MQTT_*",
	"AGENT_PASSWORD",
	"*_PASSWORD",
	"*_SECRET",
	"*_TOKEN",
	"*_PASSPHRASE",
}

// EnvFilter removes denied variables from an environment list before it is
// handed to the shell.
type EnvFilter struct {
	patterns []string
}

// NewEnvFilter creates a filter from the default deny patterns plus any
// extra patterns from configuration. Invalid glob patterns are rejected.
func NewEnvFilter(extra []string) (*EnvFilter, error) {
	patterns := make([]string, 0, len(DefaultEnvDenyPatterns)+len(extra))
	patterns = append(patterns, DefaultEnvDenyPatterns...)
	patterns = append(patterns, extra...)

	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid env deny pattern %q", p)
		}
	}

	return &EnvFilter{patterns: patterns}, nil
}

// Apply returns environ with denied variables removed. Entries are in the
// usual KEY=value form; malformed entries pass through untouched.
func (f *EnvFilter) Apply(environ []string) []string {
	kept := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, found := strings.Cut(kv, "=")
		if found && f.Denied(name) {
			continue
		}
		kept = append(kept, kv)
	}
	return kept
}

// Denied reports whether a variable name matches any deny pattern.
func (f *EnvFilter) Denied(name string) bool {
	for _, p := range f.patterns {
		// Patterns are validated at construction, so Match cannot fail.
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
