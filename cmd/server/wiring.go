package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linnemanlabs/go-core/log"

	vc "github.com/linnemanlabs/erqueue/internal/cfg"
	"github.com/linnemanlabs/erqueue/internal/notify"
	"github.com/linnemanlabs/erqueue/internal/notify/pusher"
	"github.com/linnemanlabs/erqueue/internal/notify/slack"
	"github.com/linnemanlabs/erqueue/internal/queue"
	queuemem "github.com/linnemanlabs/erqueue/internal/queue/memstore"
	queuepg "github.com/linnemanlabs/erqueue/internal/queue/pgstore"
	"github.com/linnemanlabs/erqueue/internal/queue/redisstore"
	"github.com/linnemanlabs/erqueue/internal/triage"
	triagemem "github.com/linnemanlabs/erqueue/internal/triage/memstore"
	triagepg "github.com/linnemanlabs/erqueue/internal/triage/pgstore"
	"github.com/linnemanlabs/erqueue/internal/triage/sqlitestore"
)

const redisPingTimeout = 5 * time.Second

// openTriageStore uses postgres when a pool is open, then a SQLite file
// when one is configured, and memory otherwise.
func openTriageStore(ctx context.Context, c *vc.Config, pool *pgxpool.Pool, L log.Logger) (triage.Store, func(), error) {
	noop := func() {}

	switch {
	case pool != nil:
		s, err := triagepg.New(ctx, pool)
		if err != nil {
			return nil, noop, fmt.Errorf("triage pgstore init: %w", err)
		}
		L.Info(ctx, "triage store", "backend", "postgres")
		return s, noop, nil

	case c.SQLitePath != "":
		s, err := sqlitestore.New(ctx, c.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("triage sqlitestore init: %w", err)
		}
		L.Info(ctx, "triage store", "backend", "sqlite", "path", c.SQLitePath)
		return s, func() { _ = s.Close() }, nil

	default:
		L.Info(ctx, "triage store", "backend", "memory", "reason", "no database-url or sqlite-path configured")
		return triagemem.New(), noop, nil
	}
}

// openQueueStore picks the queue backend from config. The returned close
// func is always non-nil. pool may be nil unless the backend is postgres.
func openQueueStore(ctx context.Context, c *vc.Config, pool *pgxpool.Pool, L log.Logger) (queue.Store, func(), error) {
	noop := func() {}

	switch backend := c.ResolvedQueueBackend(); backend {
	case vc.QueueBackendPostgres:
		if pool == nil {
			return nil, noop, fmt.Errorf("queue backend %s needs a database-url", backend)
		}
		s, err := queuepg.New(ctx, pool)
		if err != nil {
			return nil, noop, fmt.Errorf("queue pgstore init: %w", err)
		}
		L.Info(ctx, "queue store", "backend", backend)
		return s, noop, nil

	case vc.QueueBackendRedis:
		s := redisstore.New(c.RedisAddr, c.RedisPassword, c.RedisDB, redisstore.WithPrefix(c.RedisPrefix))
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			_ = s.Close()
			return nil, noop, fmt.Errorf("redis ping %s: %w", c.RedisAddr, err)
		}
		L.Info(ctx, "queue store", "backend", backend, "addr", c.RedisAddr, "prefix", c.RedisPrefix)
		return s, func() { _ = s.Close() }, nil

	case vc.QueueBackendMemory:
		L.Info(ctx, "queue store", "backend", backend)
		return queuemem.New(), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown queue backend %q", backend)
	}
}

// buildNotifier fans queue events out to the SSE broker and to pusher and
// slack when they are configured.
func buildNotifier(ctx context.Context, c *vc.Config, broker notify.Notifier, L log.Logger) notify.Multi {
	out := notify.Multi{broker}
	if c.PusherEnabled() {
		out = append(out, pusher.New(pusher.Config{
			AppID:   c.PusherAppID,
			Key:     c.PusherKey,
			Secret:  c.PusherSecret,
			Cluster: c.PusherCluster,
			Secure:  true,
		}))
		L.Info(ctx, "notifier enabled", "type", "pusher", "cluster", c.PusherCluster)
	}
	if c.SlackWebhookURL != "" {
		out = append(out, slack.New(c.SlackWebhookURL, L))
		L.Info(ctx, "notifier enabled", "type", "slack")
	}
	return out
}
