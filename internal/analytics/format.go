package analytics

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

var printer = message.NewPrinter(language.English)

// FormatCount renders n as millions followed by the exact separated value,
// e.g. 1.23M(1,234,567).
func FormatCount(n int64) string {
	return fmt.Sprintf("%.2fM(%s)", float64(n)/1e6, printer.Sprintf("%d", n))
}

// FormatBytes renders a byte amount with 1000-based units up to PB.
func FormatBytes(b float64) string {
	for _, unit := range byteUnits[:len(byteUnits)-1] {
		if b < 1000 {
			return fmt.Sprintf("%.2f %s", b, unit)
		}
		b /= 1000
	}

	return fmt.Sprintf("%.2f %s", b, byteUnits[len(byteUnits)-1])
}

// FormatRequests renders request counts of a million and more in millions.
func FormatRequests(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2fM", float64(n)/1e6)
	}

	return fmt.Sprintf("%d", n)
}

// FormatMicros renders CPU time as microseconds, milliseconds and millions of
// milliseconds.
func FormatMicros(us int64) string {
	ms := round2(float64(us) / 1000)
	return fmt.Sprintf("%d μs (%.2f ms, %.2f MM)", us, ms, round2(ms/1e6))
}

// FormatMetric renders a plain counter in thousands and millions.
func FormatMetric(n int64) string {
	return fmt.Sprintf("%d (%.2fk, %.6f MM)", n, round2(float64(n)/1000), float64(n)/1e6)
}

// Millions converts v to millions rounded to two decimals.
func Millions(v int64) float64 {
	return round2(float64(v) / 1e6)
}

// Gigabytes converts a byte count to 1000-based GB rounded to two decimals.
func Gigabytes(b int64) float64 {
	return round2(float64(b) / 1e9)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
