package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"spc_monitor/internal/analytics"
	"spc_monitor/internal/export"
	"spc_monitor/internal/metrics"
	"spc_monitor/internal/model"
	"spc_monitor/internal/persistence"
	"spc_monitor/internal/session"
	"spc_monitor/internal/source"
	"spc_monitor/internal/stream"
)

const (
	defaultHTTPAddr  = ":8080"
	defaultRedisDB   = 0
	defaultQueueSize = 1024
)

type chainStore interface {
	Check(ctx context.Context) error
	Save(ctx context.Context, events ...model.ChainEvent) error
	FetchLatest(ctx context.Context, trigger string) (*model.ChainEvent, error)
	FetchChain(ctx context.Context, id string) (*model.ChainEvent, error)
	Recent(ctx context.Context, n int) ([]model.ChainEvent, error)
}

type app struct {
	log      *slog.Logger
	store    chainStore
	analyzer *analytics.Analyzer
	hub      *stream.Hub
	prom     *metrics.Metrics
	queue    chan analytics.Snapshot
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type config struct {
	httpAddr         string
	redisAddr        string
	redisPassword    string
	redisDB          int
	sessionFile      string
	outputDir        string
	individualDir    string
	combinedFileName string
	timeFactor       int64
	verbose          bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "spc_monitor",
		Short:        "Live statistical process control over a streaming signal",
		SilenceUsage: true,
	}
	root.AddCommand(runCmd(), generateCmd(), validateCmd())
	return root
}

func runCmd() *cobra.Command {
	cfg := readConfig()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a session and tick it until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.httpAddr, "http-addr", cfg.httpAddr, "listen address for metrics, analytics and stream")
	f.StringVar(&cfg.redisAddr, "redis-addr", cfg.redisAddr, "redis address, empty disables the chain store")
	f.StringVar(&cfg.redisPassword, "redis-password", cfg.redisPassword, "redis password")
	f.IntVar(&cfg.redisDB, "redis-db", cfg.redisDB, "redis database")
	f.StringVarP(&cfg.sessionFile, "session", "s", cfg.sessionFile, "session document (yaml or json)")
	f.StringVar(&cfg.outputDir, "output-dir", cfg.outputDir, "directory of the combined trigger output file")
	f.StringVar(&cfg.individualDir, "individual-output-dir", cfg.individualDir, "directory of per chain output files")
	f.StringVar(&cfg.combinedFileName, "combined-file-name", cfg.combinedFileName, "name of the combined trigger output file")
	f.Int64Var(&cfg.timeFactor, "time-factor", cfg.timeFactor, "divisor turning system nanoseconds into sample time")
	f.BoolVarP(&cfg.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func readConfig() config {
	return config{
		httpAddr:         readEnv("HTTP_ADDR", defaultHTTPAddr),
		redisAddr:        readEnv("REDIS_ADDR", ""),
		redisPassword:    readEnv("REDIS_PASSWORD", ""),
		redisDB:          readEnvInt("REDIS_DB", defaultRedisDB),
		sessionFile:      readEnv("SESSION_FILE", ""),
		outputDir:        readEnv("TRIGGER_OUTPUT_DIR", ""),
		individualDir:    readEnv("TRIGGER_OUTPUT_INDIVIDUAL_DIR", ""),
		combinedFileName: readEnv("TRIGGER_OUTPUT_COMBINED_FILE_NAME", ""),
		timeFactor:       int64(readEnvInt("TIME_FACTOR", 0)),
	}
}

func readEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func readEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

// firstOf returns the first non-empty value.
func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func run(cfg config) error {
	log := newLogger(cfg.verbose)
	if cfg.sessionFile == "" {
		return errors.New("no session document, set --session or SESSION_FILE")
	}

	doc, err := session.Load(cfg.sessionFile)
	if err != nil {
		return err
	}
	interval, err := doc.RefreshInterval()
	if err != nil {
		return err
	}

	settings := doc.Settings
	if settings == nil {
		settings = &session.Settings{}
	}
	outputDir := firstOf(cfg.outputDir, settings.OutputDir, export.DefaultDir)
	exporter, err := export.NewFileExporter(
		firstOf(cfg.individualDir, settings.IndividualOutputDir, outputDir),
		outputDir,
		firstOf(cfg.combinedFileName, settings.CombinedFileName, export.DefaultCombinedName),
	)
	if err != nil {
		return err
	}

	if ds := doc.DataSource; ds != nil && cfg.timeFactor > 0 {
		if ds.Kwargs == nil {
			ds.Kwargs = &source.Options{}
		}
		if ds.Kwargs.TimeFactor == 0 {
			ds.Kwargs.TimeFactor = cfg.timeFactor
		}
	}

	engine, err := session.Build(doc, session.BuildOptions{Log: log, Exporter: exporter})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store chainStore
	if cfg.redisAddr != "" {
		rs := persistence.NewChainStore(cfg.redisAddr, cfg.redisPassword, cfg.redisDB)
		defer func() {
			if err := rs.Stop(); err != nil {
				log.Warn("redis close error", "err", err)
			}
		}()
		if err := rs.Check(ctx); err != nil {
			log.Warn("redis ping failed", "err", err)
		}
		store = rs
	}

	hub := stream.NewHub(log)
	defer hub.Close()

	service := newApp(ctx, log, store, engine, hub, metrics.New(prometheus.DefaultRegisterer))
	service.start(interval)

	httpServer := &http.Server{
		Addr:              cfg.httpAddr,
		Handler:           service.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http server listening", "addr", cfg.httpAddr, "refresh", interval)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen failed", "err", err)
			cancel()
		}
	}()

	awaitSignal(ctx, cancel, log)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", "err", err)
	}
	service.stop()
	return nil
}

func newApp(ctx context.Context, log *slog.Logger, store chainStore, engine *analytics.Analyzer,
	hub *stream.Hub, prom *metrics.Metrics) *app {
	service := &app{
		log:      log,
		store:    store,
		analyzer: engine,
		hub:      hub,
		prom:     prom,
		queue:    make(chan analytics.Snapshot, defaultQueueSize),
	}
	service.ctx, service.cancel = context.WithCancel(ctx)
	return service
}

// start runs the tick and worker loops until stop.
func (a *app) start(interval time.Duration) {
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.workerLoop()
	}()
	go func() {
		defer a.wg.Done()
		a.tickLoop(interval)
	}()
}

// stop cancels both loops and waits for an in-flight tick or save to finish.
func (a *app) stop() {
	a.cancel()
	a.wg.Wait()
}

// tickLoop advances the analyzer every interval and hands each snapshot to
// the worker without blocking.
func (a *app) tickLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *app) tick() {
	start := time.Now()
	snap := a.analyzer.Tick()
	a.prom.Observe(snap, time.Since(start))

	select {
	case a.queue <- snap:
	default:
		a.prom.QueueFull()
		a.log.Warn("worker queue full, snapshot dropped", "tick", snap.Tick)
	}
}

func (a *app) workerLoop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case snap := <-a.queue:
			a.handle(snap)
		}
	}
}

func (a *app) handle(snap analytics.Snapshot) {
	if a.store != nil && len(snap.Events) > 0 {
		ctx, cancel := context.WithTimeout(a.ctx, 2*time.Second)
		if err := a.store.Save(ctx, snap.Events...); err != nil {
			a.prom.RedisError()
			a.log.Warn("redis store error", "err", err)
		}
		cancel()
	}

	if err := a.hub.Broadcast(snap); err != nil {
		a.log.Warn("stream broadcast failed", "err", err)
	}
	a.prom.StreamClients(a.hub.Clients())
}

func (a *app) router() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/analytics", a.analyticsHandler)
	mux.HandleFunc("/latest", a.latestHandler)
	mux.HandleFunc("/chains", a.chainsHandler)
	mux.Handle("/stream", a.hub)
	return mux
}

func (a *app) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if a.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := a.store.Check(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("redis unavailable"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}

func (a *app) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	res := a.analyzer.Latest()
	respondJSON(w, res)
}

func (a *app) latestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if a.store == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("chain store disabled"))
		return
	}

	q := r.URL.Query()
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var (
		event *model.ChainEvent
		err   error
	)
	if id := q.Get("chain"); id != "" {
		event, err = a.store.FetchChain(ctx, id)
	} else {
		event, err = a.store.FetchLatest(ctx, q.Get("trigger"))
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("redis error"))
		return
	}
	if event == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no data"))
		return
	}

	respondJSON(w, event)
}

func (a *app) chainsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if a.store == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("chain store disabled"))
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid limit"))
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	events, err := a.store.Recent(ctx, limit)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("redis error"))
		return
	}
	respondJSON(w, events)
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func awaitSignal(ctx context.Context, cancel context.CancelFunc, log *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info("shutdown signal received")
	case <-ctx.Done():
	}
	cancel()
}
