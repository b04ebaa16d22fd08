package services

import (
	"context"
	"time"
)

// Component status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

const healthTimeout = 3 * time.Second

// HealthReport is the aggregate health of the running components.
type HealthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Healthy reports whether every component passed.
func (h HealthReport) Healthy() bool {
	return h.Status == StatusOK
}

// Health checks the store, cache backend and vector index. Components that
// were not configured are left out of the report.
func (r *registry) Health(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	checks := map[string]func(context.Context) error{}
	if r.documents != nil {
		checks["store"] = r.documents.store.Ping
	}
	if r.cache != nil {
		checks["cache"] = r.cache.Health
	}
	if r.vectorIndex != nil {
		checks["vector_index"] = r.vectorIndex.Health
	}

	report := HealthReport{Status: StatusOK, Components: make(map[string]string, len(checks))}
	for name, check := range checks {
		if err := check(ctx); err != nil {
			report.Components[name] = StatusDegraded + ": " + err.Error()
			report.Status = StatusDegraded
			continue
		}
		report.Components[name] = StatusOK
	}
	return report
}
