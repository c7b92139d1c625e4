package event

import (
	"fmt"
	"strings"
)

// FormatSSE renders an event as a Server-Sent Events frame:
//
//	id: 42
//	event: content_chunk
//	data: {"type":"content_chunk",...}
//
// The id line is omitted for unstamped events (pings). The event label
// is sanitized so a hostile type value can never split the frame.
func FormatSSE(ev Event) (string, error) {
	data, err := ev.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}

	var b strings.Builder
	if ev.Seq > 0 {
		fmt.Fprintf(&b, "id: %d\n", ev.Seq)
	}
	fmt.Fprintf(&b, "event: %s\n", sanitizeLabel(string(ev.Type)))
	fmt.Fprintf(&b, "data: %s\n\n", data)
	return b.String(), nil
}

// sanitizeLabel keeps alphanumerics, underscore and hyphen; everything
// else (newlines included) is dropped.
func sanitizeLabel(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return -1
		}
	}, s)
}
