package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const buildColumns = `id, configuration_id, queue_item_id, number, state, outcome, trigger, queued_at, started_at, finished_at, estimated_duration_seconds, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// GetBuild returns a single build by ID.
func (s *Store) GetBuild(ctx context.Context, buildID int64) (Build, error) {
	build, err := scanBuild(s.db.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = $1`, buildID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Build{}, fmt.Errorf("%w: build %d", ErrNotFound, buildID)
		}
		return Build{}, err
	}
	return build, nil
}

// ListBuildsByState returns builds of a configuration in one state. Queued and running builds come
// in registration order; finished builds come newest first, like the host's history.
func (s *Store) ListBuildsByState(ctx context.Context, configurationID string, buildState BuildState) ([]Build, error) {
	order := `queued_at ASC, id ASC`
	if buildState == BuildStateFinished {
		order = `finished_at DESC NULLS LAST, id DESC`
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT `+buildColumns+`
FROM builds
WHERE configuration_id = $1 AND state = $2
ORDER BY `+order, configurationID, buildState)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		build, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, build)
	}
	return builds, rows.Err()
}

// StartBuild moves a queued build to RUNNING. A build that already started is rejected.
func (s *Store) StartBuild(ctx context.Context, buildID int64, startedAt time.Time, estimatedSeconds *int64) (Build, error) {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	err := s.transitionBuild(ctx, buildID, BuildStateRunning, validateBuildProgress, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
UPDATE builds
SET started_at = $2,
    estimated_duration_seconds = COALESCE($3, estimated_duration_seconds)
WHERE id = $1
`, buildID, startedAt, estimatedSeconds)
		return err
	})
	if err != nil {
		return Build{}, err
	}
	return s.GetBuild(ctx, buildID)
}

// FinishBuild moves a queued or running build to FINISHED with the given native outcome. A finished
// build keeps its recorded outcome and the call is rejected.
func (s *Store) FinishBuild(ctx context.Context, buildID int64, finishedAt time.Time, outcome Outcome) (Build, error) {
	if err := validateOutcome(outcome); err != nil {
		return Build{}, err
	}
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}
	err := s.transitionBuild(ctx, buildID, BuildStateFinished, validateBuildProgress, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
UPDATE builds
SET finished_at = $2,
    outcome = $3
WHERE id = $1
`, buildID, finishedAt, outcome)
		return err
	})
	if err != nil {
		return Build{}, err
	}
	return s.GetBuild(ctx, buildID)
}

// TransitionBuildState enforces the build state machine using row-level locking. The optional
// apply callback runs inside the same transaction after the state check.
func (s *Store) TransitionBuildState(ctx context.Context, buildID int64, next BuildState, apply func(tx *sql.Tx) error) error {
	return s.transitionBuild(ctx, buildID, next, validateBuildTransition, apply)
}

func (s *Store) transitionBuild(ctx context.Context, buildID int64, next BuildState, validate func(id string, from, to BuildState) error, apply func(tx *sql.Tx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current BuildState
		if err := tx.QueryRowContext(ctx, `SELECT state FROM builds WHERE id = $1 FOR UPDATE`, buildID).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: build %d", ErrNotFound, buildID)
			}
			return err
		}

		if err := validate(fmt.Sprint(buildID), current, next); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE builds SET state = $2, updated_at = NOW() WHERE id = $1`, buildID, next); err != nil {
			return err
		}
		if apply != nil {
			return apply(tx)
		}
		return nil
	})
}

// SetBuildParameters replaces the parameters recorded for a build.
func (s *Store) SetBuildParameters(ctx context.Context, buildID int64, params map[string]string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM build_parameters WHERE build_id = $1`, buildID); err != nil {
			return err
		}
		for name, value := range params {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO build_parameters (build_id, name, value)
VALUES ($1, $2, $3)
`, buildID, name, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListBuildParameters returns a build's parameters ordered by name.
func (s *Store) ListBuildParameters(ctx context.Context, buildID int64) ([]BuildParameter, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT build_id, name, value
FROM build_parameters
WHERE build_id = $1
ORDER BY name ASC
`, buildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var params []BuildParameter
	for rows.Next() {
		var param BuildParameter
		if err := rows.Scan(&param.BuildID, &param.Name, &param.Value); err != nil {
			return nil, err
		}
		params = append(params, param)
	}
	return params, rows.Err()
}

func scanBuild(row rowScanner) (Build, error) {
	var build Build
	var queueItemID sql.NullString
	var outcome sql.NullString
	var trigger []byte
	var startedAt sql.NullTime
	var finishedAt sql.NullTime
	var estimated sql.NullInt64
	if err := row.Scan(
		&build.ID,
		&build.ConfigurationID,
		&queueItemID,
		&build.Number,
		&build.State,
		&outcome,
		&trigger,
		&build.QueuedAt,
		&startedAt,
		&finishedAt,
		&estimated,
		&build.CreatedAt,
		&build.UpdatedAt,
	); err != nil {
		return Build{}, err
	}
	if queueItemID.Valid {
		build.QueueItemID = &queueItemID.String
	}
	if outcome.Valid {
		value := Outcome(outcome.String)
		build.Outcome = &value
	}
	if startedAt.Valid {
		build.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		build.FinishedAt = &finishedAt.Time
	}
	if estimated.Valid {
		build.EstimatedDurationSeconds = &estimated.Int64
	}
	build.Trigger = decodeTrigger(trigger)
	return build, nil
}

// decodeTrigger flattens a trigger descriptor to strings. Keys with non-string values are kept with an
// empty value, so a malformed root link still reads as linked and never matches a root.
func decodeTrigger(raw []byte) map[string]string {
	var values map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &values) != nil {
		return map[string]string{}
	}
	trigger := make(map[string]string, len(values))
	for key, value := range values {
		text, _ := value.(string)
		trigger[key] = text
	}
	return trigger
}
