package helpers

import (
	"regexp"
	"strings"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DeepCopyMap is a generic function to copy a map with any key and value types.
func DeepCopyMap[K comparable, V any](original map[K]V) map[K]V {
	mapCopy := make(map[K]V, len(original))

	for key, value := range original {
		mapCopy[key] = value
	}

	return mapCopy
}

// SafeFileName turns free text (search terms, host names) into a file name
// fragment: dots and spaces become underscores, anything else unsafe is
// dropped.
func SafeFileName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(".", "_", " ", "_").Replace(s)
	s = unsafeFileChars.ReplaceAllString(s, "")

	if s == "" {
		return "report"
	}

	return s
}

// SplitList splits a comma separated CLI value into trimmed, non-empty items.
func SplitList(values ...string) []string {
	var items []string

	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			item = strings.TrimSpace(item)
			if item != "" {
				items = append(items, item)
			}
		}
	}

	return items
}
