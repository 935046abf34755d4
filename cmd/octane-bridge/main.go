package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/izavyalov-dev/octane-bridge/artifacts"
	"github.com/izavyalov-dev/octane-bridge/bridge"
	"github.com/izavyalov-dev/octane-bridge/client"
	"github.com/izavyalov-dev/octane-bridge/internal/config"
	"github.com/izavyalov-dev/octane-bridge/internal/observability"
	"github.com/izavyalov-dev/octane-bridge/protocol"
	"github.com/izavyalov-dev/octane-bridge/snapshot"
	"github.com/izavyalov-dev/octane-bridge/state"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "seed":
		err = runSeed(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: octane-bridge <serve|migrate|export|seed> [flags]")
}

func defaultConfigPath() string {
	if path := os.Getenv("OCTANE_BRIDGE_CONFIG"); path != "" {
		return path
	}
	return "octane-bridge.yaml"
}

// loadConfig reads the config file, applies the database flag and shared log level.
func loadConfig(path, databaseURL string) (*config.Config, error) {
	cfg, err := config.LoadOrInit(path, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	observability.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func runServe(args []string) error {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := flags.String("config", defaultConfigPath(), "Path to the YAML config file")
	databaseURL := flags.String("database-url", "", "Postgres DSN (overrides config and DATABASE_URL)")
	listen := flags.String("listen", "", "Listen address (overrides config)")
	_ = flags.Parse(args)

	cfg, err := loadConfig(*configPath, *databaseURL)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrate(ctx, store); err != nil {
		return err
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	service := newService(store, cfg, metrics)
	handler := bridge.NewHTTPHandler(service, prometheus.DefaultGatherer, observability.NewLogger("bridge.http"))

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger := observability.NewLogger("octane-bridge")
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "event", "server_started", "listen", cfg.Listen, "server_url", cfg.ServerURL, "identity", cfg.Identity)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("server stopping", "event", "server_stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func runMigrate(args []string) error {
	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := flags.String("config", defaultConfigPath(), "Path to the YAML config file")
	databaseURL := flags.String("database-url", "", "Postgres DSN (overrides config and DATABASE_URL)")
	_ = flags.Parse(args)

	cfg, err := loadConfig(*configPath, *databaseURL)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrate(ctx, store)
}

func runExport(args []string) error {
	flags := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := flags.String("config", defaultConfigPath(), "Path to the YAML config file")
	databaseURL := flags.String("database-url", "", "Postgres DSN (overrides config and DATABASE_URL)")
	jobID := flags.String("job", "", "External id of the configuration to snapshot")
	rootID := flags.String("root", "", "Internal id of the root configuration (defaults to the job itself)")
	out := flags.String("out", "", "Write the snapshot to this file instead of stdout")
	s3Bucket := flags.String("s3-bucket", "", "Upload the snapshot to this S3 bucket")
	s3Prefix := flags.String("s3-prefix", "", "S3 key prefix for uploads")
	s3Region := flags.String("s3-region", "", "S3 region for uploads")
	remote := flags.String("remote", "", "Fetch the snapshot from a running bridge at this URL instead of the database")
	_ = flags.Parse(args)

	if *jobID == "" {
		return errors.New("job is required")
	}
	cfg, err := loadConfig(*configPath, *databaseURL)
	if err != nil {
		return err
	}
	exportCfg := artifacts.S3Config{
		Bucket: firstNonEmpty(*s3Bucket, cfg.Export.S3Bucket),
		Prefix: firstNonEmpty(*s3Prefix, cfg.Export.S3Prefix),
		Region: firstNonEmpty(*s3Region, cfg.Export.S3Region),
	}

	ctx := context.Background()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	node, err := fetchSnapshot(ctx, cfg, metrics, *remote, *jobID, *rootID)
	if err != nil {
		return err
	}

	logger := observability.WithJob(observability.NewLogger("export"), *jobID)
	if exportCfg.Bucket != "" {
		uploader, err := artifacts.NewS3Uploader(ctx, exportCfg)
		if err != nil {
			return err
		}
		uri, err := uploader.UploadSnapshot(ctx, node, time.Now().UTC())
		if err != nil {
			return err
		}
		metrics.IncExport("s3")
		logger.Info("snapshot uploaded", "event", "snapshot_uploaded", "uri", uri)
		return nil
	}

	data, err := json.MarshalIndent(node, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if *out == "" {
		metrics.IncExport("stdout")
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	metrics.IncExport("file")
	logger.Info("snapshot written", "event", "snapshot_written", "path", *out)
	return nil
}

func fetchSnapshot(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, remote, jobID, rootID string) (protocol.SnapshotNode, error) {
	if remote != "" {
		return client.NewHTTPClient(remote).LatestSnapshot(ctx, jobID, rootID)
	}
	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return protocol.SnapshotNode{}, err
	}
	defer db.Close()
	return newService(store, cfg, metrics).Snapshot(ctx, jobID, rootID)
}

func runSeed(args []string) error {
	flags := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := flags.String("config", defaultConfigPath(), "Path to the YAML config file")
	databaseURL := flags.String("database-url", "", "Postgres DSN (overrides config and DATABASE_URL)")
	file := flags.String("file", "", "YAML topology to load")
	_ = flags.Parse(args)

	if *file == "" {
		return errors.New("file is required")
	}
	topology, err := loadTopology(*file)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath, *databaseURL)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrate(ctx, store); err != nil {
		return err
	}

	summary, err := applyTopology(ctx, store, topology)
	if err != nil {
		return err
	}
	observability.NewLogger("seed").Info("topology loaded",
		"event", "topology_loaded",
		"configurations", summary.Configurations,
		"dependencies", summary.Dependencies,
		"builds", summary.Builds,
	)
	return nil
}

func newService(store *state.Store, cfg *config.Config, metrics *observability.Metrics) *bridge.Service {
	host := state.NewHost(store)
	opts := []snapshot.Option{
		snapshot.WithLogger(observability.NewLogger("snapshot")),
		snapshot.WithCycleObserver(metrics),
	}
	if cfg.StrictCycles {
		opts = append(opts, snapshot.WithStrictCycles())
	}
	assembler := snapshot.NewAssembler(host, snapshot.DefaultOutcomeMapper{}, host, opts...)
	server := bridge.ServerInfo{
		Type:         cfg.ServerType,
		Version:      cfg.ServerVersion,
		URL:          cfg.ServerURL,
		Identity:     cfg.Identity,
		IdentityFrom: cfg.IdentityFrom,
	}
	return bridge.NewService(assembler, host, server, metrics, observability.NewLogger("bridge"))
}

func openStore(ctx context.Context, cfg *config.Config) (*state.Store, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("database-url, config database_url or DATABASE_URL required")
	}
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return state.NewStore(db), db, nil
}

func migrate(ctx context.Context, store *state.Store) error {
	applied, err := store.ApplyMigrations(ctx)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		observability.NewLogger("migrate").Info("migrations applied", "event", "migrations_applied", "ids", applied)
	}
	return nil
}

func openDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
