package report

import (
	"strconv"
	"strings"
)

const (
	MaxSheetNameLength = 31
	SummarySheet       = "Summary"

	fallbackSheetName = "Sheet"
)

var sheetNameReplacer = strings.NewReplacer(
	"[", "_", "]", "_", ":", "_", "*", "_", "?", "_", "/", "_", `\`, "_",
)

// SanitizeSheetName replaces characters a workbook rejects in sheet names
// with '_' and truncates the result to 31 characters.
func SanitizeSheetName(name string) string {
	return truncateRunes(sheetNameReplacer.Replace(name), MaxSheetNameLength)
}

// sheetNamer hands out sanitized names that are unique ignoring case.
type sheetNamer struct {
	used map[string]bool
}

func newSheetNamer(reserved ...string) *sheetNamer {
	n := &sheetNamer{used: make(map[string]bool)}
	for _, r := range reserved {
		n.used[strings.ToLower(r)] = true
	}
	return n
}

func (n *sheetNamer) name(key string) string {
	base := SanitizeSheetName(key)
	// Leading or trailing apostrophes are rejected as well.
	base = strings.Trim(base, "'")
	if strings.TrimSpace(base) == "" {
		base = fallbackSheetName
	}

	name := base
	for i := 2; n.used[strings.ToLower(name)]; i++ {
		suffix := "_" + strconv.Itoa(i)
		name = truncateRunes(base, MaxSheetNameLength-len(suffix)) + suffix
	}

	n.used[strings.ToLower(name)] = true

	return name
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
