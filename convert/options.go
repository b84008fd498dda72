package convert

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// ParseOptions turns a shell-style option string like
//
//	quality=90 grayscale resize=800x600
//
// into the option bag handed to the converter. Splitting follows shell rules,
// so quoted values keep their spaces. Bare tokens become flags set to "true".
func ParseOptions(s string) (map[string]string, error) {
	opts := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return opts, nil
	}
	tokens, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("invalid options syntax: %w", err)
	}
	for _, tok := range tokens {
		key, val, found := strings.Cut(tok, "=")
		if key == "" {
			return nil, fmt.Errorf("invalid option %q", tok)
		}
		if !found {
			val = "true"
		}
		opts[key] = val
	}
	return opts, nil
}

// MergeOptions overlays override onto base without mutating either. Used to
// apply per-request options on top of configured defaults.
func MergeOptions(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
