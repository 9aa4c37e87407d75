package main

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/linnemanlabs/go-core/log"

	vc "github.com/linnemanlabs/erqueue/internal/cfg"
	queuemem "github.com/linnemanlabs/erqueue/internal/queue/memstore"
	"github.com/linnemanlabs/erqueue/internal/queue/redisstore"
	"github.com/linnemanlabs/erqueue/internal/triage"
	triagemem "github.com/linnemanlabs/erqueue/internal/triage/memstore"
	"github.com/linnemanlabs/erqueue/internal/triage/sqlitestore"
)

func TestNotifySystemd_Errors(t *testing.T) {
	tests := []struct {
		name   string
		socket func(t *testing.T) string
		want   string
	}{
		{"no socket", func(*testing.T) string { return "" }, "NOTIFY_SOCKET not set"},
		{"missing path", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nonexistent.sock") }, "dial failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NOTIFY_SOCKET", tt.socket(t))

			err := notifySystemd()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestNotifySystemd_Success(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")

	var lc net.ListenConfig
	conn, err := lc.ListenPacket(context.Background(), "unixgram", sockPath)
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	defer func() { _ = conn.Close() }()

	t.Setenv("NOTIFY_SOCKET", sockPath)

	if err := notifySystemd(); err != nil {
		t.Fatalf("notifySystemd() = %v, want nil", err)
	}

	buf := make([]byte, 256)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read from socket: %v", err)
	}
	if got := string(buf[:n]); got != "READY=1" {
		t.Errorf("payload = %q, want %q", got, "READY=1")
	}
}

func TestOpenQueueStore_Memory(t *testing.T) {
	t.Parallel()

	c := &vc.Config{QueueBackend: vc.QueueBackendAuto}
	s, closeFn, err := openQueueStore(context.Background(), c, nil, log.Nop())
	if err != nil {
		t.Fatalf("openQueueStore: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*queuemem.Store); !ok {
		t.Errorf("store = %T, want *memstore.Store", s)
	}
}

func TestOpenQueueStore_Redis(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	c := &vc.Config{QueueBackend: vc.QueueBackendRedis, RedisAddr: mr.Addr(), RedisPrefix: "t:"}
	s, closeFn, err := openQueueStore(context.Background(), c, nil, log.Nop())
	if err != nil {
		t.Fatalf("openQueueStore: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*redisstore.Store); !ok {
		t.Fatalf("store = %T, want *redisstore.Store", s)
	}

	e, err := s.Append(context.Background(), triage.LabelMinor)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got, _ := mr.Get("t:seq"); got != "1" || e.Number != 1 {
		t.Errorf("seq = %q, number = %d, want 1", got, e.Number)
	}
}

func TestOpenQueueStore_Errors(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	tests := []struct {
		name string
		cfg  vc.Config
	}{
		{"postgres without pool", vc.Config{QueueBackend: vc.QueueBackendPostgres}},
		{"redis unreachable", vc.Config{QueueBackend: vc.QueueBackendRedis, RedisAddr: addr}},
		{"unknown backend", vc.Config{QueueBackend: "kafka"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, closeFn, err := openQueueStore(context.Background(), &tt.cfg, nil, log.Nop())
			if err == nil {
				t.Fatalf("expected error, got store %T", s)
			}
			if closeFn == nil {
				t.Error("close func is nil")
			}
		})
	}
}

func TestOpenTriageStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, closeFn, err := openTriageStore(ctx, &vc.Config{}, nil, log.Nop())
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	closeFn()
	if _, ok := s.(*triagemem.Store); !ok {
		t.Errorf("store = %T, want *memstore.Store", s)
	}

	c := &vc.Config{SQLitePath: filepath.Join(t.TempDir(), "triage.db")}
	s, closeFn, err = openTriageStore(ctx, c, nil, log.Nop())
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*sqlitestore.Store); !ok {
		t.Fatalf("store = %T, want *sqlitestore.Store", s)
	}

	g := triage.NewGraph()
	g.CreateRoot()
	if err := s.Save(ctx, g.Serialize()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	dto, err := s.Load(ctx)
	if err != nil || len(dto.Nodes) != 1 {
		t.Errorf("Load = %d nodes, %v", len(dto.Nodes), err)
	}
}

func TestOpenTriageStore_BadSQLitePath(t *testing.T) {
	t.Parallel()

	c := &vc.Config{SQLitePath: filepath.Join(t.TempDir(), "missing", "triage.db")}
	if _, _, err := openTriageStore(context.Background(), c, nil, log.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
