package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/izavyalov-dev/octane-bridge/internal/observability"
	"github.com/izavyalov-dev/octane-bridge/protocol"
	"github.com/izavyalov-dev/octane-bridge/snapshot"
)

// PluginVersion is reported in the status document.
const PluginVersion = "1.0.0"

// ErrJobNotFound is returned when a snapshot is requested for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// Assembler produces snapshot trees; *snapshot.Assembler satisfies it.
type Assembler interface {
	AssembleForRoot(ctx context.Context, externalID, rootID string) (snapshot.Node, error)
}

// JobLister lists the configurations that can be offered as pipeline roots.
type JobLister interface {
	ListJobs(ctx context.Context) ([]snapshot.Configuration, error)
}

// ServerInfo identifies the CI server instance. URL is expected to be normalized already.
type ServerInfo struct {
	Type         string
	Version      string
	URL          string
	Identity     string
	IdentityFrom int64
}

// Service answers snapshot, job and status queries.
type Service struct {
	assembler Assembler
	jobs      JobLister
	server    ServerInfo
	metrics   *observability.Metrics
	logger    *slog.Logger
	startedAt time.Time
}

func NewService(assembler Assembler, jobs JobLister, server ServerInfo, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = observability.NewLogger("bridge")
	}
	return &Service{
		assembler: assembler,
		jobs:      jobs,
		server:    server,
		metrics:   metrics,
		logger:    logger,
		startedAt: time.Now().UTC(),
	}
}

// Snapshot assembles the latest build tree of jobID. An empty rootID roots the tree at jobID itself.
func (s *Service) Snapshot(ctx context.Context, jobID, rootID string) (protocol.SnapshotNode, error) {
	logger := observability.WithRoot(observability.WithJob(s.logger, jobID), rootID)
	start := time.Now()

	node, err := s.assembler.AssembleForRoot(ctx, jobID, rootID)
	if err != nil {
		switch {
		case errors.Is(err, snapshot.ErrConfigurationNotFound):
			s.metrics.IncSnapshot("not_found")
			return protocol.SnapshotNode{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		case errors.Is(err, snapshot.ErrDependencyCycle):
			s.metrics.IncSnapshot("cycle")
		default:
			s.metrics.IncSnapshot("error")
		}
		logger.Error("snapshot failed", "event", "snapshot_failed", "error", err)
		return protocol.SnapshotNode{}, err
	}

	s.metrics.IncSnapshot("ok")
	s.countNodes(node)
	logger.Debug("snapshot assembled",
		"event", "snapshot_assembled",
		"status", node.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return protocol.FromNode(node), nil
}

// Jobs lists every known configuration.
func (s *Service) Jobs(ctx context.Context) (protocol.JobsList, error) {
	configs, err := s.jobs.ListJobs(ctx)
	if err != nil {
		return protocol.JobsList{}, err
	}
	list := protocol.JobsList{Jobs: make([]protocol.Job, 0, len(configs))}
	for _, cfg := range configs {
		list.Jobs = append(list.Jobs, protocol.Job{
			JobID:        cfg.ExternalID,
			Name:         cfg.Name,
			Project:      cfg.ProjectName,
			ExtendedName: cfg.ExtendedName(),
		})
	}
	return list, nil
}

// Status describes the server and the bridge at now.
func (s *Service) Status(now time.Time) protocol.StatusInfo {
	return protocol.StatusInfo{
		Server: protocol.ServerInfo{
			Type:               s.server.Type,
			Version:            s.server.Version,
			URL:                s.server.URL,
			InstanceID:         s.server.Identity,
			InstanceIDFrom:     s.server.IdentityFrom,
			SendingTime:        now.UnixMilli(),
			PluginRunningSince: s.startedAt.UnixMilli(),
		},
		PluginVersion: PluginVersion,
		Time:          now.UnixMilli(),
	}
}

func (s *Service) countNodes(node snapshot.Node) {
	s.metrics.IncNode(string(node.Status))
	for _, phase := range node.PhasesPostBuild {
		for _, child := range phase.Builds {
			s.countNodes(child)
		}
	}
}
