package database

import "sort"

type dsnOption struct {
	key   string
	value string
}

// mergeOptions overlays user options on driver defaults and returns them in key order,
// so generated DSNs are stable across runs.
func mergeOptions(defaults, overrides map[string]string) []dsnOption {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for key, value := range defaults {
		merged[key] = value
	}
	for key, value := range overrides {
		merged[key] = value
	}

	out := make([]dsnOption, 0, len(merged))
	for key, value := range merged {
		out = append(out, dsnOption{key: key, value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func firstNonEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func portOrDefault(port, fallback int) int {
	if port <= 0 {
		return fallback
	}
	return port
}
