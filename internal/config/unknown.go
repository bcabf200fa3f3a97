package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you
// mean?" suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys are the valid keys in the config file, qualified by
// section. [apps.<service>] and [[bucket]] sub-keys are matched on the
// leaf key because the section name is user-chosen.
var knownKeys = map[string]bool{
	"server.listen_addr": true, "server.base_url": true,
	"store.path": true, "store.secret": true, "store.retention": true,
	"logging.log_level": true, "logging.log_format": true,
	"network.call_timeout": true, "network.user_agent": true,
	"client_id": true, "client_secret": true, "scopes": true,
	"name": true, "endpoint": true, "region": true, "bucket": true,
}

// knownKeysList is the sorted slice form for Levenshtein matching.
// Sorted for deterministic suggestions when two candidates have the
// same edit distance.
var knownKeysList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and
// returns an error with "did you mean?" suggestions for each.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		errs = append(errs, buildKeyError(key.String()))
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for an unknown key,
// optionally suggesting the closest known key. Keys under [apps.*] and
// [[bucket]] are matched by their leaf name.
func buildKeyError(keyStr string) error {
	candidate := keyStr
	if strings.HasPrefix(keyStr, "apps.") || strings.HasPrefix(keyStr, "bucket.") {
		parts := strings.Split(keyStr, ".")
		candidate = parts[len(parts)-1]
	}

	suggestion := closestMatch(candidate, knownKeysList)
	if suggestion != "" {
		return fmt.Errorf("unknown config key %q — did you mean %q?", keyStr, suggestion)
	}

	return fmt.Errorf("unknown config key %q", keyStr)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization to avoid allocating a full matrix.
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

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
