package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/webcluster/internal/api/models"
	"github.com/smazurov/webcluster/internal/cluster"
	"github.com/smazurov/webcluster/internal/process"
	"github.com/smazurov/webcluster/internal/version"
)

const (
	healthStarting = "starting"
	healthHealthy  = "healthy"
)

func (s *Server) registerClusterRoutes() {
	// Health check endpoint - no auth required, used by load balancers
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Cluster readiness. Answers 503 until every worker reported ready.",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		st := s.options.Cluster.Status()

		resp := &models.HealthResponse{
			Status: http.StatusServiceUnavailable,
			Body: models.HealthData{
				Status: healthStarting,
				Ready:  st.Ready,
				Size:   st.Size,
				RunID:  s.options.RunID,
			},
		}
		if st.Healthy {
			resp.Status = http.StatusOK
			resp.Body.Status = healthHealthy
		}
		if s.options.IPCClients != nil {
			resp.Body.IPCClients = s.options.IPCClients()
		}
		if s.options.IPCWorkers != nil {
			resp.Body.IPCWorkers = s.options.IPCWorkers()
		}
		if s.options.IPCConnected != nil {
			connected := s.options.IPCConnected()
			resp.Body.IPCConnected = &connected
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-workers",
		Method:      http.MethodGet,
		Path:        "/api/workers",
		Summary:     "List Workers",
		Description: "Worker slots with their process ids, states and failure counters",
		Tags:        []string{"workers"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.WorkerListResponse, error) {
		st := s.options.Cluster.Status()

		procs := make(map[int]process.State)
		if s.options.Processes != nil {
			for _, p := range s.options.Processes() {
				procs[p.PID] = p.State
			}
		}

		workers := make([]models.WorkerData, 0, len(st.Slots))
		for _, slot := range st.Slots {
			data := toWorkerData(slot)
			if state, alive := procs[slot.PID]; alive && slot.PID != 0 {
				data.Process = string(state)
			}
			workers = append(workers, data)
		}

		return &models.WorkerListResponse{
			Body: models.WorkerListData{
				Workers: workers,
				Count:   len(workers),
				Healthy: st.Healthy,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})
}

func toWorkerData(slot cluster.SlotInfo) models.WorkerData {
	data := models.WorkerData{
		ID:                  slot.ID,
		PID:                 slot.PID,
		State:               string(slot.State),
		ConsecutiveFailures: slot.ConsecutiveFailures,
	}
	if !slot.StartedAt.IsZero() {
		startedAt := slot.StartedAt
		data.StartedAt = &startedAt
	}
	return data
}
