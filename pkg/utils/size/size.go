package size

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatBytes formats a byte count with binary prefixes, e.g. 1.5MiB.
func FormatBytes(n int64) string {
	return format(n, 1024, "KMGTPE", "iB", "B")
}

// FormatNumber formats a count with decimal prefixes, e.g. 1.2k.
func FormatNumber(n int64) string {
	return format(n, 1000, "kMGTPE", "", "")
}

func format(n, unit int64, prefixes, suffix, plainSuffix string) string {
	if n < unit {
		return fmt.Sprintf("%d%s", n, plainSuffix)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%c%s", float64(n)/float64(div), prefixes[exp], suffix)
}

// units is ordered so that longer suffixes are tried first, e.g. "gib"
// before "b".
var units = []struct {
	suffix     string
	multiplier int64
}{
	{"tib", 1 << 40}, {"gib", 1 << 30}, {"mib", 1 << 20}, {"kib", 1 << 10},
	{"tb", 1 << 40}, {"gb", 1 << 30}, {"mb", 1 << 20}, {"kb", 1 << 10},
	{"t", 1 << 40}, {"g", 1 << 30}, {"m", 1 << 20}, {"k", 1 << 10},
	{"b", 1},
}

func MustParse(s string) int64 {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Parse parses a human readable size such as "256k", "4 MiB" or "1024".
// Suffixes are case-insensitive and always binary. An empty string is 0.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	lower := strings.ToLower(s)
	for _, u := range units {
		if !strings.HasSuffix(lower, u.suffix) {
			continue
		}
		num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number: %s", num)
		}
		if f < 0 {
			return 0, fmt.Errorf("size must not be negative: %s", s)
		}
		return int64(f * float64(u.multiplier)), nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %s", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("size must not be negative: %s", s)
	}

	return n, nil
}
