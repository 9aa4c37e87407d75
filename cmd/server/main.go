// Server runs the erqueue API: the ER triage decision tree and the live
// patient queue.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/erqueue/internal/api"
	vc "github.com/linnemanlabs/erqueue/internal/cfg"
	"github.com/linnemanlabs/erqueue/internal/notify/sse"
	"github.com/linnemanlabs/erqueue/internal/postgres"
	"github.com/linnemanlabs/erqueue/internal/queue"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

const appName = "erqueue"
const component = "server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	// every package owns its flags; env (ERQUEUE_*) fills only what the
	// command line left unset
	var (
		appCfg    vc.Config
		httpCfg   httpserver.Config
		httpmwCfg httpmw.Config
		logCfg    log.Config
		opsCfg    opshttp.Config
		profCfg   prof.Config
		traceCfg  otelx.Config
	)
	appCfg.RegisterFlags(flag.CommandLine)
	httpCfg.RegisterFlags(flag.CommandLine)
	httpmwCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	opsCfg.RegisterFlags(flag.CommandLine)
	profCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	cfg.FillFromEnv(flag.CommandLine, "ERQUEUE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		httpCfg.Validate(),
		httpmwCfg.Validate(),
		logCfg.Validate(),
		opsCfg.Validate(),
		profCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if appCfg.APIPort == opsCfg.Port {
		return fmt.Errorf("http and admin ports must differ (both %d)", appCfg.APIPort)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "starting erqueue",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", appCfg.APIPort,
		"admin_port", opsCfg.Port,
		"queue_backend", appCfg.ResolvedQueueBackend(),
		"postgres", appCfg.DatabaseURL != "",
		"sqlite_path", appCfg.SQLitePath,
		"staff_auth", appCfg.StaffToken != "",
		"enable_tracing", traceCfg.EnableTracing,
		"enable_pyroscope", profCfg.EnablePyroscope,
		"trusted_proxy_hops", httpmwCfg.TrustedProxyHops,
	)

	// profiling first so the whole lifetime is covered
	profOpts := profCfg.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
	}
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", profCfg.PyroServer)
	}
	if stopProf == nil {
		stopProf = func() {}
	}
	defer stopProf()

	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx == nil {
		shutdownOtelx = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOtelx(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profErr == nil && profCfg.EnablePyroscope)

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "erqueue_db_query_duration_seconds",
		Help:    "Duration of individual database queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route", "outcome"})
	m.Registry().MustRegister(dbQueryDuration)

	// one pool serves both the triage and the queue store
	var pool *pgxpool.Pool
	if appCfg.DatabaseURL != "" {
		pool, err = postgres.NewPool(ctx, appCfg.DatabaseURL,
			postgres.WithObserver(func(operation, route, outcome string, dur time.Duration) {
				dbQueryDuration.WithLabelValues(operation, route, outcome).Observe(dur.Seconds())
			}),
			postgres.WithSlowThreshold(time.Duration(appCfg.SlowQueryMillis)*time.Millisecond),
		)
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		defer pool.Close()
	}

	triageStore, closeTriage, err := openTriageStore(ctx, &appCfg, pool, L)
	if err != nil {
		return err
	}
	defer closeTriage()

	queueStore, closeQueue, err := openQueueStore(ctx, &appCfg, pool, L)
	if err != nil {
		return err
	}
	defer closeQueue()

	broker := sse.NewBroker(L, sse.WithKeepAlive(time.Duration(appCfg.SSEKeepAliveSeconds)*time.Second))
	defer broker.Close()

	triageSvc := triage.NewService(triageStore, triage.NewMetrics(m.Registry()).Hooks(), L)
	queueSvc := queue.NewService(queueStore, buildNotifier(ctx, &appCfg, broker, L), queue.NewMetrics(m.Registry()).Hooks(), L)

	if appCfg.StaffToken == "" {
		L.Warn(ctx, "staff token not set, tree edits and patient calls are unauthenticated")
	}

	// readiness fails while draining so the load balancer stops sending work
	var shutdownGate health.ShutdownGate
	readiness := health.All(shutdownGate.Probe())
	liveness := health.Fixed(true, "")

	opsOpts := opsCfg.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		if err := opsHTTPStop(context.Background()); err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	apiHTTP := api.New(L, triageSvc, queueSvc,
		api.WithEvents(broker),
		api.WithStaffToken(appCfg.StaffToken),
	)
	h := newHandler(handlerDeps{
		logger:      L,
		api:         apiHTTP,
		healthz:     health.HealthzHandler(liveness),
		readyz:      health.ReadyzHandler(readiness),
		instrument:  func(h http.Handler) http.Handler { return m.Middleware(h) },
		trustedHops: httpmwCfg.TrustedProxyHops,
	})

	apiOpts, err := httpCfg.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}
	apiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", appCfg.APIPort), h, L, apiOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		return err
	}
	defer func() {
		if err := apiHTTPStop(context.Background()); err != nil {
			L.Error(ctx, err, "failed to stop api http listener")
		}
	}()

	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	shutdownGate.Set("draining")
	drain(bg, L, time.Duration(appCfg.DrainSeconds)*time.Second)

	// event streams never end on their own and would hold the api server
	broker.Close()

	shutdown(L, time.Duration(appCfg.ShutdownBudgetSeconds)*time.Second, []stopFn{
		{"api http server", apiHTTPStop},
		{"ops http server", opsHTTPStop},
		{"otel", shutdownOtelx},
	})
	stopProf()

	L.Info(bg, "shutdown complete")
	return nil
}

// drain waits for the load balancer to notice readiness failing. A second
// signal skips the wait.
func drain(ctx context.Context, L log.Logger, d time.Duration) {
	L.Info(ctx, "draining", "drain_seconds", d.Seconds())
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(forceCh)

	select {
	case <-time.After(d):
		L.Info(ctx, "drain period complete")
	case <-forceCh:
		L.Warn(ctx, "second signal received, skipping drain")
	}
}

type stopFn struct {
	name string
	fn   func(context.Context) error
}

// shutdown stops each component in order, giving each an equal slice of
// budget.
func shutdown(L log.Logger, budget time.Duration, fns []stopFn) {
	if len(fns) == 0 {
		return
	}
	per := budget / time.Duration(len(fns))
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for _, s := range fns {
		cctx, ccancel := context.WithTimeout(ctx, per)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // addr comes from systemd, unixgram dial has no context variant
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
