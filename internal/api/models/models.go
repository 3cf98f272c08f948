package models

import "time"

// Health models
type HealthData struct {
	Status       string `json:"status" enum:"starting,healthy" example:"healthy" doc:"Cluster status"`
	Ready        int    `json:"ready" example:"4" doc:"Distinct workers that reported ready"`
	Size         int    `json:"size" example:"4" doc:"Configured pool size"`
	IPCClients   int    `json:"ipc_clients,omitempty" example:"5" doc:"Connections on the embedded message server"`
	IPCWorkers   int    `json:"ipc_workers,omitempty" example:"4" doc:"Worker processes connected to the message server"`
	IPCConnected *bool  `json:"ipc_connected,omitempty" example:"true" doc:"Whether the primary is connected to the message server"`
	RunID        string `json:"run_id,omitempty" example:"6f1c2a9e-3b7d-4c1e-9a55-0d2f7e8b1c44" doc:"Identifier of this primary run"`
}

type HealthResponse struct {
	Status int
	Body   HealthData
}

// Worker models
type WorkerData struct {
	ID                  int        `json:"id" example:"0" doc:"Logical worker slot"`
	PID                 int        `json:"pid" example:"4242" doc:"OS process id, 0 when no process is running"`
	State               string     `json:"state" enum:"starting,healthy,crashed,exited,abandoned" example:"healthy" doc:"Slot lifecycle state"`
	ConsecutiveFailures int        `json:"consecutive_failures" example:"0" doc:"Crashes since the last successful start"`
	Process             string     `json:"process,omitempty" enum:"running,stopping" example:"running" doc:"State of the forked process, empty when none is alive"`
	StartedAt           *time.Time `json:"started_at,omitempty" doc:"When the current process was spawned"`
}

type WorkerListData struct {
	Workers []WorkerData `json:"workers" doc:"Worker slots ordered by id"`
	Count   int          `json:"count" example:"4" doc:"Number of slots"`
	Healthy bool         `json:"healthy" doc:"True once cluster_healthy was broadcast"`
}

type WorkerListResponse struct {
	Body WorkerListData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}
