package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestConfigurationsAndDependencies(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestStore(t, ctx)
	defer cleanup()

	seedConfiguration(t, ctx, store, "bt1", "Root")
	seedConfiguration(t, ctx, store, "bt2", "Lib")
	seedConfiguration(t, ctx, store, "bt3", "Tools")

	if _, err := store.CreateConfiguration(ctx, BuildConfiguration{ID: "bt9", ExternalID: "Ext_bt1", Name: "Dup"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if err := store.RecordDependency(ctx, Dependency{ConfigurationID: "bt1", DependsOnID: "bt3", Position: 1}); err != nil {
		t.Fatalf("record dependency: %v", err)
	}
	if err := store.RecordDependency(ctx, Dependency{ConfigurationID: "bt1", DependsOnID: "bt2", Position: 0}); err != nil {
		t.Fatalf("record dependency: %v", err)
	}

	deps, err := store.ListDependencies(ctx, "bt1")
	if err != nil {
		t.Fatalf("list dependencies: %v", err)
	}
	if len(deps) != 2 || deps[0].ID != "bt2" || deps[1].ID != "bt3" {
		t.Fatalf("unexpected dependency order: %+v", deps)
	}

	if _, err := store.GetConfigurationByExternalID(ctx, "Ext_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBuildLifecycle(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestStore(t, ctx)
	defer cleanup()

	seedConfiguration(t, ctx, store, "bt1", "Root")

	queued, err := store.EnqueueBuild(ctx, Build{ConfigurationID: "bt1", Number: "7", Trigger: map[string]string{"buildTypeId": "bt1"}})
	if err != nil {
		t.Fatalf("enqueue build: %v", err)
	}
	if queued.QueueItemID == nil || *queued.QueueItemID == "" {
		t.Fatalf("expected generated queue item id")
	}

	inQueue, err := store.HasQueuedBuilds(ctx, "bt1")
	if err != nil || !inQueue {
		t.Fatalf("expected queued build, got %v (err=%v)", inQueue, err)
	}

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	estimate := int64(120)
	running, err := store.StartBuild(ctx, queued.ID, start, &estimate)
	if err != nil {
		t.Fatalf("start build: %v", err)
	}
	if running.State != BuildStateRunning || running.EstimatedDurationSeconds == nil || *running.EstimatedDurationSeconds != 120 {
		t.Fatalf("unexpected running build: %+v", running)
	}

	finished, err := store.FinishBuild(ctx, queued.ID, start.Add(45*time.Second), OutcomeFailure)
	if err != nil {
		t.Fatalf("finish build: %v", err)
	}
	if finished.Outcome == nil || *finished.Outcome != OutcomeFailure {
		t.Fatalf("unexpected outcome: %+v", finished.Outcome)
	}
	if finished.Trigger["buildTypeId"] != "bt1" {
		t.Fatalf("trigger not persisted: %#v", finished.Trigger)
	}

	if _, err := store.StartBuild(ctx, queued.ID, start, nil); !IsTransitionError(err) {
		t.Fatalf("expected transition error, got %v", err)
	}
}

func TestBuildsAreNotRestartedOrRefinished(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestStore(t, ctx)
	defer cleanup()

	seedConfiguration(t, ctx, store, "bt1", "Root")
	build, err := store.EnqueueBuild(ctx, Build{ConfigurationID: "bt1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if _, err := store.StartBuild(ctx, build.ID, start, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := store.StartBuild(ctx, build.ID, start.Add(time.Hour), nil); !IsTransitionError(err) {
		t.Fatalf("expected transition error on restart, got %v", err)
	}

	finish := start.Add(time.Minute)
	if _, err := store.FinishBuild(ctx, build.ID, finish, OutcomeSuccess); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err := store.FinishBuild(ctx, build.ID, finish.Add(time.Hour), OutcomeFailure); !IsTransitionError(err) {
		t.Fatalf("expected transition error on refinish, got %v", err)
	}

	got, err := store.GetBuild(ctx, build.ID)
	if err != nil {
		t.Fatalf("get build: %v", err)
	}
	if got.Outcome == nil || *got.Outcome != OutcomeSuccess {
		t.Fatalf("expected recorded outcome to survive, got %v", got.Outcome)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(start) || got.FinishedAt == nil || !got.FinishedAt.Equal(finish) {
		t.Fatalf("expected recorded timestamps to survive, got started=%v finished=%v", got.StartedAt, got.FinishedAt)
	}
}

func TestCancelQueuedBuild(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestStore(t, ctx)
	defer cleanup()

	seedConfiguration(t, ctx, store, "bt1", "Root")
	itemID := "q-100"
	if _, err := store.EnqueueBuild(ctx, Build{ConfigurationID: "bt1", QueueItemID: &itemID}); err != nil {
		t.Fatalf("enqueue build: %v", err)
	}
	if _, err := store.EnqueueBuild(ctx, Build{ConfigurationID: "bt1", QueueItemID: &itemID}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate queue item, got %v", err)
	}

	canceled, err := store.CancelQueuedBuild(ctx, itemID, time.Now().UTC())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.State != BuildStateFinished || canceled.Outcome == nil || *canceled.Outcome != OutcomeCanceled {
		t.Fatalf("unexpected canceled build: %+v", canceled)
	}
	if _, err := store.CancelQueuedBuild(ctx, itemID, time.Now().UTC()); !IsTransitionError(err) {
		t.Fatalf("expected transition error on second cancel, got %v", err)
	}
	if _, err := store.CancelQueuedBuild(ctx, "q-missing", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListBuildsByStateOrdering(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestStore(t, ctx)
	defer cleanup()

	seedConfiguration(t, ctx, store, "bt1", "Root")
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 3; i++ {
		build, err := store.EnqueueBuild(ctx, Build{ConfigurationID: "bt1", Number: fmt.Sprint(i + 1), QueuedAt: base.Add(time.Duration(i) * time.Minute)})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		ids = append(ids, build.ID)
	}
	for i, id := range ids {
		if _, err := store.FinishBuild(ctx, id, base.Add(time.Duration(10+i)*time.Minute), OutcomeSuccess); err != nil {
			t.Fatalf("finish: %v", err)
		}
	}

	history, err := store.ListBuildsByState(ctx, "bt1", BuildStateFinished)
	if err != nil {
		t.Fatalf("list finished: %v", err)
	}
	if len(history) != 3 || history[0].Number != "3" || history[2].Number != "1" {
		t.Fatalf("expected newest first, got %+v", history)
	}
}

func TestBuildParameters(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestStore(t, ctx)
	defer cleanup()

	seedConfiguration(t, ctx, store, "bt1", "Root")
	build, err := store.EnqueueBuild(ctx, Build{ConfigurationID: "bt1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.SetBuildParameters(ctx, build.ID, map[string]string{"branch": "main", "env": "qa"}); err != nil {
		t.Fatalf("set parameters: %v", err)
	}
	if err := store.SetBuildParameters(ctx, build.ID, map[string]string{"branch": "release"}); err != nil {
		t.Fatalf("replace parameters: %v", err)
	}
	params, err := store.ListBuildParameters(ctx, build.ID)
	if err != nil {
		t.Fatalf("list parameters: %v", err)
	}
	if len(params) != 1 || params[0].Name != "branch" || params[0].Value != "release" {
		t.Fatalf("unexpected parameters: %+v", params)
	}
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestStore(t, ctx)
	defer cleanup()

	applied, err := store.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no pending migrations, got %v", applied)
	}
}

func seedConfiguration(t *testing.T, ctx context.Context, store *Store, id, name string) BuildConfiguration {
	t.Helper()
	cfg, err := store.CreateConfiguration(ctx, BuildConfiguration{ID: id, ExternalID: "Ext_" + id, Name: name, ProjectName: "Project"})
	if err != nil {
		t.Fatalf("create configuration %s: %v", id, err)
	}
	return cfg
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(4)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("ping db: %v", err)
	}

	store := NewStore(db)
	if _, err := store.ApplyMigrations(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("apply migrations: %v", err)
	}
	if err := resetDatabase(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("reset database: %v", err)
	}

	cleanup := func() {
		_ = resetDatabase(ctx, db)
		_ = db.Close()
	}
	return store, cleanup
}

func resetDatabase(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `
SELECT tablename
FROM pg_tables
WHERE schemaname = 'public'
  AND tablename <> 'schema_migrations'
`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		tables = append(tables, `"`+strings.ReplaceAll(name, `"`, `""`)+`"`)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(tables) == 0 {
		return nil
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf("TRUNCATE %s CASCADE", strings.Join(tables, ", ")))
	return err
}
