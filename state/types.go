package state

import "time"

// BuildConfiguration is a build definition registered on the CI host.
type BuildConfiguration struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id"`
	Name        string    `json:"name"`
	ProjectName string    `json:"project_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Dependency is a declared upstream edge between two configurations.
type Dependency struct {
	ConfigurationID string `json:"configuration_id"`
	DependsOnID     string `json:"depends_on_id"`
	Position        int    `json:"position"`
}

// Build is one execution of a configuration in any state.
type Build struct {
	ID                       int64             `json:"id"`
	ConfigurationID          string            `json:"configuration_id"`
	QueueItemID              *string           `json:"queue_item_id,omitempty"`
	Number                   string            `json:"number"`
	State                    BuildState        `json:"state"`
	Outcome                  *Outcome          `json:"outcome,omitempty"`
	Trigger                  map[string]string `json:"trigger"`
	QueuedAt                 time.Time         `json:"queued_at"`
	StartedAt                *time.Time        `json:"started_at,omitempty"`
	FinishedAt               *time.Time        `json:"finished_at,omitempty"`
	EstimatedDurationSeconds *int64            `json:"estimated_duration_seconds,omitempty"`
	CreatedAt                time.Time         `json:"created_at"`
	UpdatedAt                time.Time         `json:"updated_at"`
}

// ElapsedSeconds returns whole seconds between start and finish, or start and now while running.
func (b Build) ElapsedSeconds(now time.Time) int64 {
	if b.StartedAt == nil {
		return 0
	}
	end := now
	if b.FinishedAt != nil {
		end = *b.FinishedAt
	}
	elapsed := int64(end.Sub(*b.StartedAt).Seconds())
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// BuildParameter is one resolved parameter of a build.
type BuildParameter struct {
	BuildID int64  `json:"build_id"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}
