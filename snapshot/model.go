package snapshot

import "time"

// DependenciesPhase names the synthetic phase that carries the flattened dependency list.
const DependenciesPhase = "teamcity_dependencies"

// RootLinkKey is the trigger descriptor key that links a build to the root configuration that caused it.
const RootLinkKey = "buildTypeId"

type Status string

const (
	StatusQueued      Status = "queued"
	StatusRunning     Status = "running"
	StatusFinished    Status = "finished"
	StatusUnavailable Status = "unavailable"
)

type Result string

const (
	ResultSuccess     Result = "success"
	ResultFailure     Result = "failure"
	ResultUnstable    Result = "unstable"
	ResultAborted     Result = "aborted"
	ResultUnavailable Result = "unavailable"
)

// Configuration is a named, addressable build definition on the CI host.
type Configuration struct {
	// ID is the internal identifier; trigger descriptors reference it.
	ID          string
	ExternalID  string
	Name        string
	ProjectName string
}

// ExtendedName returns the fully qualified display name.
func (c Configuration) ExtendedName() string {
	if c.ProjectName == "" {
		return c.Name
	}
	return c.ProjectName + " :: " + c.Name
}

// Build is one concrete execution of a configuration: queued, running, or finished.
type Build struct {
	ID          string
	QueueItemID string
	Number      string
	StartedAt   time.Time
	// DurationSeconds is the elapsed time in the host's native unit.
	DurationSeconds int64
	// EstimatedDurationSeconds is only meaningful for running builds.
	EstimatedDurationSeconds int64
	Trigger                  map[string]string
	// Outcome is the host's native outcome code, set for finished builds.
	Outcome string
}

// RootLink reports the root configuration id recorded in the trigger descriptor.
func (b Build) RootLink() (string, bool) {
	if b.Trigger == nil {
		return "", false
	}
	value, ok := b.Trigger[RootLinkKey]
	return value, ok
}

// Node is one resolved (or unavailable) build in the snapshot tree.
type Node struct {
	JobID             string
	BuildID           string
	Name              string
	Number            string
	Status            Status
	Result            Result
	StartTime         *int64
	Duration          *int64
	EstimatedDuration *int64
	Parameters        map[string]string
	PhasesPostBuild   []Phase
}

// Resolved reports whether the node is backed by a concrete build.
func (n Node) Resolved() bool {
	return n.BuildID != ""
}

// Phase groups sibling nodes; Blocking means downstream execution waits on it.
type Phase struct {
	Name     string
	Blocking bool
	Builds   []Node
}
