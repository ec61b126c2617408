package timex

import "time"

// ISOLayout is a fixed-width UTC ISO-8601 layout. Values formatted with it
// sort lexically in chronological order, which the local store relies on.
const ISOLayout = "2006-01-02T15:04:05.000000000Z"

// FormatISO renders t in UTC using ISOLayout.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// ParseISO accepts ISOLayout as well as any RFC 3339 timestamp.
func ParseISO(s string) (time.Time, error) {
	if t, err := time.Parse(ISOLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
