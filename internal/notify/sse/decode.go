package sse

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/linnemanlabs/erqueue/internal/notify"
)

// Decode reads an SSE stream written by Broker and calls fn for every queue
// event. Comments, pings and unknown event types are skipped. Decode returns
// when the stream ends, fn returns false, or a frame is malformed.
func Decode(r io.Reader, fn func(notify.Event) bool) error {
	sc := bufio.NewScanner(r)

	var event, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if event == "" && data == "" {
				continue
			}
			ev, ok, err := parseFrame(event, data)
			event, data = "", ""
			if err != nil {
				return err
			}
			if ok && !fn(ev) {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("sse: read stream: %w", err)
	}
	return nil
}

func parseFrame(event, data string) (notify.Event, bool, error) {
	t := notify.EventType(event)
	if t != notify.PatientIn && t != notify.PatientOut {
		return notify.Event{}, false, nil
	}
	n, err := strconv.Atoi(data)
	if err != nil {
		return notify.Event{}, false, fmt.Errorf("sse: %s event with non-numeric data %q", event, data)
	}
	return notify.Event{Type: t, Number: n}, true, nil
}
