package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/erqueue/internal/notify"
)

func TestBroker_PublishToSubscribers(t *testing.T) {
	t.Parallel()

	b := NewBroker(log.Nop())
	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	ev := notify.Event{Type: notify.PatientIn, Number: 7}
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, ch := range []<-chan notify.Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got != ev {
				t.Errorf("sub %d got %+v, want %+v", i, got, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub %d: timed out", i)
		}
	}
}

func TestBroker_DropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	b := NewBroker(log.Nop(), WithBuffer(1))
	_, cancel := b.Subscribe()
	defer cancel()

	ctx := context.Background()
	_ = b.Publish(ctx, notify.Event{Type: notify.PatientIn, Number: 1})
	_ = b.Publish(ctx, notify.Event{Type: notify.PatientIn, Number: 2})
	_ = b.Publish(ctx, notify.Event{Type: notify.PatientIn, Number: 3})

	if got := b.Dropped(); got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
}

func TestBroker_CancelAndClose(t *testing.T) {
	t.Parallel()

	b := NewBroker(log.Nop())
	ch, cancel := b.Subscribe()
	if b.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", b.Subscribers())
	}
	cancel()
	cancel() // idempotent
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	if b.Subscribers() != 0 {
		t.Errorf("Subscribers = %d, want 0", b.Subscribers())
	}

	ch2, cancel2 := b.Subscribe()
	defer cancel2()
	b.Close()
	if _, ok := <-ch2; ok {
		t.Error("channel should be closed after Close")
	}

	ch3, _ := b.Subscribe()
	if _, ok := <-ch3; ok {
		t.Error("subscribe after Close should return a closed channel")
	}
}

func TestBroker_ServeHTTP(t *testing.T) {
	t.Parallel()

	b := NewBroker(log.Nop())
	srv := httptest.NewServer(b)
	defer srv.Close()

	resp, err := http.Get(srv.URL) //nolint:noctx // test
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, _ := r.ReadString('\n')
	if strings.TrimSpace(line) != "event: ping" {
		t.Fatalf("first line = %q, want ping", line)
	}

	// wait for the handler to register before publishing
	deadline := time.Now().Add(time.Second)
	for b.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	_ = b.Publish(context.Background(), notify.Event{Type: notify.PatientOut, Number: 42})

	var got []notify.Event
	err = Decode(r, func(ev notify.Event) bool {
		got = append(got, ev)
		return false
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0] != (notify.Event{Type: notify.PatientOut, Number: 42}) {
		t.Errorf("events = %+v", got)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	stream := strings.Join([]string{
		"event: ping",
		"data: connected",
		"",
		": keepalive",
		"",
		"event: patient-in",
		"data: 3",
		"",
		"event: something-else",
		"data: x",
		"",
		"event: patient-out",
		"data: 1",
		"",
	}, "\n")

	var got []notify.Event
	if err := Decode(strings.NewReader(stream), func(ev notify.Event) bool {
		got = append(got, ev)
		return true
	}); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	want := []notify.Event{
		{Type: notify.PatientIn, Number: 3},
		{Type: notify.PatientOut, Number: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("events = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	err := Decode(strings.NewReader("event: patient-in\ndata: abc\n\n"), func(notify.Event) bool { return true })
	if err == nil {
		t.Fatal("expected error for non-numeric data")
	}
}

func TestWriteEvent(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	if err := WriteEvent(&sb, notify.Event{Type: notify.PatientIn, Number: 5}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if sb.String() != "event: patient-in\ndata: 5\n\n" {
		t.Errorf("frame = %q", sb.String())
	}
}
