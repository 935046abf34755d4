package state

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnqueueBuild registers a new QUEUED build. A queue item id is generated when none is given.
func (s *Store) EnqueueBuild(ctx context.Context, build Build) (Build, error) {
	if build.ConfigurationID == "" {
		return Build{}, errors.New("configuration id required")
	}
	if build.QueueItemID == nil || *build.QueueItemID == "" {
		itemID := newQueueItemID()
		build.QueueItemID = &itemID
	}
	if build.QueuedAt.IsZero() {
		build.QueuedAt = time.Now().UTC()
	}
	if build.Trigger == nil {
		build.Trigger = map[string]string{}
	}
	trigger, err := json.Marshal(build.Trigger)
	if err != nil {
		return Build{}, err
	}
	build.State = BuildStateQueued

	err = s.db.QueryRowContext(ctx, `
INSERT INTO builds (configuration_id, queue_item_id, number, state, trigger, queued_at, estimated_duration_seconds)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at, updated_at
`, build.ConfigurationID, *build.QueueItemID, build.Number, build.State, string(trigger), build.QueuedAt, build.EstimatedDurationSeconds).
		Scan(&build.ID, &build.CreatedAt, &build.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Build{}, fmt.Errorf("%w: queue item %s", ErrDuplicate, *build.QueueItemID)
		}
		return Build{}, err
	}
	return build, nil
}

// HasQueuedBuilds reports whether the configuration has at least one build waiting in the queue.
func (s *Store) HasQueuedBuilds(ctx context.Context, configurationID string) (bool, error) {
	var queued bool
	err := s.db.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT 1 FROM builds WHERE configuration_id = $1 AND state = 'QUEUED'
)
`, configurationID).Scan(&queued)
	return queued, err
}

// CancelQueuedBuild removes a build from the queue by finishing it as CANCELED.
func (s *Store) CancelQueuedBuild(ctx context.Context, queueItemID string, now time.Time) (Build, error) {
	if queueItemID == "" {
		return Build{}, errors.New("queue item id required")
	}

	var buildID int64
	var current BuildState
	err := s.db.QueryRowContext(ctx, `SELECT id, state FROM builds WHERE queue_item_id = $1`, queueItemID).Scan(&buildID, &current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Build{}, fmt.Errorf("%w: queue item %s", ErrNotFound, queueItemID)
		}
		return Build{}, err
	}
	if current != BuildStateQueued {
		return Build{}, TransitionError{Entity: "queue item", ID: queueItemID, From: string(current), To: string(BuildStateFinished)}
	}
	return s.FinishBuild(ctx, buildID, now, OutcomeCanceled)
}

func newQueueItemID() string {
	var b [10]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("queue_%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("queue_%x", b[:])
}
