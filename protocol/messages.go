package protocol

import (
	"sort"

	"github.com/izavyalov-dev/octane-bridge/snapshot"
)

const ParameterTypeString = "string"

// SnapshotNode is the wire form of one build in a snapshot tree.
type SnapshotNode struct {
	JobID             string          `json:"jobId"`
	BuildID           string          `json:"buildId,omitempty"`
	Name              string          `json:"name"`
	Number            string          `json:"number,omitempty"`
	Status            string          `json:"status"`
	Result            string          `json:"result"`
	StartTime         *int64          `json:"startTime,omitempty"`
	Duration          *int64          `json:"duration,omitempty"`
	EstimatedDuration *int64          `json:"estimatedDuration,omitempty"`
	Parameters        []Parameter     `json:"parameters,omitempty"`
	PhasesPostBuild   []SnapshotPhase `json:"phasesPostBuild,omitempty"`
}

// SnapshotPhase groups sibling nodes after the parent build.
type SnapshotPhase struct {
	Name     string         `json:"name"`
	Blocking bool           `json:"blocking"`
	Builds   []SnapshotNode `json:"builds"`
}

type Parameter struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StatusInfo describes the bridge and the CI server it fronts.
type StatusInfo struct {
	Server        ServerInfo `json:"server"`
	PluginVersion string     `json:"pluginVersion"`
	Time          int64      `json:"time"`
}

type ServerInfo struct {
	Type               string `json:"type"`
	Version            string `json:"version"`
	URL                string `json:"url"`
	InstanceID         string `json:"instanceId"`
	InstanceIDFrom     int64  `json:"instanceIdFrom"`
	SendingTime        int64  `json:"sendingTime"`
	ImpersonatedUser   string `json:"impersonatedUser,omitempty"`
	SuspendCIEvents    bool   `json:"suspendCiEvents"`
	PluginRunningSince int64  `json:"pluginRunningSince,omitempty"`
}

// Job is one build configuration offered for pipeline creation.
type Job struct {
	JobID        string `json:"jobId"`
	Name         string `json:"name"`
	Project      string `json:"project,omitempty"`
	ExtendedName string `json:"extendedName"`
}

type JobsList struct {
	Jobs []Job `json:"jobs"`
}

// ErrorResponse is the body of non-2xx replies.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromNode converts an engine node and its phases recursively. Parameters are sorted by name.
func FromNode(node snapshot.Node) SnapshotNode {
	out := SnapshotNode{
		JobID:             node.JobID,
		BuildID:           node.BuildID,
		Name:              node.Name,
		Number:            node.Number,
		Status:            string(node.Status),
		Result:            string(node.Result),
		StartTime:         node.StartTime,
		Duration:          node.Duration,
		EstimatedDuration: node.EstimatedDuration,
		Parameters:        parameters(node.Parameters),
	}
	for _, phase := range node.PhasesPostBuild {
		wire := SnapshotPhase{
			Name:     phase.Name,
			Blocking: phase.Blocking,
			Builds:   make([]SnapshotNode, 0, len(phase.Builds)),
		}
		for _, child := range phase.Builds {
			wire.Builds = append(wire.Builds, FromNode(child))
		}
		out.PhasesPostBuild = append(out.PhasesPostBuild, wire)
	}
	return out
}

func parameters(values map[string]string) []Parameter {
	if len(values) == 0 {
		return nil
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]Parameter, 0, len(names))
	for _, name := range names {
		params = append(params, Parameter{Type: ParameterTypeString, Name: name, Value: values[name]})
	}
	return params
}
