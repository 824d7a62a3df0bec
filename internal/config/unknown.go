package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each section.
var knownKeys = map[string][]string{
	"api": {"base_url", "transport", "timeout", "user_agent", "tenant_id"},
	"auth": {
		"store", "token_path", "db_path", "refresh_mode", "refresh_endpoint",
		"refresh_timeout", "oauth2_token_url", "oauth2_client_id",
	},
	"logging": {"log_level", "log_format"},
}

// knownSections is the sorted list of section names, for suggestions.
var knownSections = func() []string {
	s := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		s = append(s, k)
	}

	slices.Sort(s)

	return s
}()

// sectionFor returns the section a flat key belongs to, for keys written
// outside their table (for example log_level at the top level).
func sectionFor(key string) string {
	for _, sec := range knownSections {
		if slices.Contains(knownKeys[sec], key) {
			return sec
		}
	}

	return ""
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		errs = append(errs, unknownKeyError(key))
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	if len(key) == 1 {
		if sec := sectionFor(key[0]); sec != "" {
			return fmt.Errorf("unknown config key %q: did you mean %q under [%s]?", key[0], key[0], sec)
		}

		if suggestion := closestMatch(key[0], knownSections); suggestion != "" {
			return fmt.Errorf("unknown config key %q: did you mean [%s]?", key[0], suggestion)
		}

		return fmt.Errorf("unknown config key %q", key[0])
	}

	section, field := key[0], key[len(key)-1]

	known, ok := knownKeys[section]
	if !ok {
		if suggestion := closestMatch(section, knownSections); suggestion != "" {
			return fmt.Errorf("unknown config section [%s]: did you mean [%s]?", section, suggestion)
		}

		return fmt.Errorf("unknown config section [%s]", section)
	}

	if suggestion := closestMatch(field, known); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s]: did you mean %q?", field, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", field, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization avoids allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
