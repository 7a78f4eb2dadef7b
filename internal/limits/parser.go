// Package limits extracts governor limit usage from Apex debug logs.
package limits

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultNamespace is the namespace of the limit block for code outside any
// managed package.
const DefaultNamespace = "(default)"

var (
	numberOfPattern = regexp.MustCompile(`(Number of(?:\s\w+)*): (\d+) out of (\d+)`)
	maximumPattern  = regexp.MustCompile(`(Maximum(?:\s\w+)*): (\d+) out of (\d+)`)
)

// Entry is one limit usage reading from a log.
type Entry struct {
	Limit       string  `json:"limit"`
	Description string  `json:"description"`
	Consumed    int64   `json:"consumed"`
	Max         int64   `json:"max"`
	Percentage  float64 `json:"percentage"`
	Integral    bool    `json:"integral"`
}

// PercentLabel formats the percentage the way it was computed: whole numbers
// without decimals, everything else with two.
func (e Entry) PercentLabel() string {
	if e.Integral {
		return strconv.FormatFloat(e.Percentage, 'f', 0, 64)
	}
	return strconv.FormatFloat(e.Percentage, 'f', 2, 64)
}

// Marker returns the line that opens the limit usage block for namespace.
func Marker(namespace string) string {
	return "LIMIT_USAGE_FOR_NS|" + namespace + "|\n"
}

// Parse returns the entries of the namespace's last limit usage block whose
// percentage is at least threshold, in order of appearance.
func Parse(text, namespace string, threshold int) []Entry {
	return Filter(ParseAll(text, namespace), threshold)
}

// ParseAll returns every entry of the namespace's last limit usage block with
// a defined percentage. Scanning stops at the first blank line so readings of
// a following namespace block are not picked up.
func ParseAll(text, namespace string) []Entry {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if idx := strings.LastIndex(text, Marker(namespace)); idx >= 0 {
		text = text[idx+len(Marker(namespace)):]
	}

	var entries []Entry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}

		m := numberOfPattern.FindStringSubmatch(line)
		if m == nil {
			m = maximumPattern.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}

		entry, ok := newEntry(m[1], m[2], m[3])
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// Filter keeps the entries whose percentage is at least threshold.
func Filter(entries []Entry, threshold int) []Entry {
	var kept []Entry
	for _, e := range entries {
		if e.Percentage >= float64(threshold) {
			kept = append(kept, e)
		}
	}
	return kept
}

func newEntry(name, consumedStr, maxStr string) (Entry, bool) {
	consumed, err := strconv.ParseInt(consumedStr, 10, 64)
	if err != nil {
		return Entry{}, false
	}
	max, err := strconv.ParseInt(maxStr, 10, 64)
	if err != nil {
		return Entry{}, false
	}

	pct, integral, ok := Percentage(consumed, max)
	if !ok {
		return Entry{}, false
	}

	name = strings.TrimSpace(name)
	return Entry{
		Limit:       name,
		Description: DisplayName(name),
		Consumed:    consumed,
		Max:         max,
		Percentage:  pct,
		Integral:    integral,
	}, true
}

// Percentage computes consumed/max*100. Whole results are returned as is and
// reported integral; others are rounded to two decimals. ok is false when the
// percentage is undefined (max is zero).
func Percentage(consumed, max int64) (pct float64, integral bool, ok bool) {
	if max == 0 {
		return 0, false, false
	}
	raw := float64(consumed) / float64(max) * 100
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, false, false
	}
	if raw == math.Trunc(raw) {
		return raw, true, true
	}
	return math.Round(raw*100) / 100, false, true
}
