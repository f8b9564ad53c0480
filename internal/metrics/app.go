package metrics

import (
	"time"

	"github.com/goalsmith/goalsmith/internal/observability"
)

// Application metric names.
const (
	QuotaDecisionsTotal = "quota_decisions_total"
	QuotaIdentities     = "quota_tracked_identities"
	QuotaPurgedTotal    = "quota_purged_identities_total"

	GateOutcomesTotal = "gate_outcomes_total"

	GenerationTotal    = "generation_requests_total"
	GenerationDuration = "generation_duration_ms"
	GenerationTasks    = "generation_tasks_returned"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
)

// Gate stages, in the order a request passes through them.
const (
	StageRateLimit  = "rate_limit"
	StageValidation = "validation"
	StageModeration = "moderation"
	StageGeneration = "generation"
	StageAccepted   = "accepted"
)

// RecordQuotaDecision counts an allow/deny decision for a tracker scope
// ("server" or "client").
func RecordQuotaDecision(scope string, allowed bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	_ = observability.TelemetrySystem.Counter(QuotaDecisionsTotal, 1, map[string]string{
		"scope":    scope,
		"decision": decision,
	})
}

// SetQuotaIdentities reports how many identities the server tracker holds.
func SetQuotaIdentities(count int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(QuotaIdentities, float64(count), nil)
}

// RecordQuotaPurge counts identities dropped by a sweep.
func RecordQuotaPurge(purged int) {
	if observability.TelemetrySystem == nil || purged <= 0 {
		return
	}
	_ = observability.TelemetrySystem.Counter(QuotaPurgedTotal, float64(purged), nil)
}

// RecordGateOutcome counts where a request left the gate. Accepted requests
// are recorded with StageAccepted.
func RecordGateOutcome(stage string, accepted bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	_ = observability.TelemetrySystem.Counter(GateOutcomesTotal, 1, map[string]string{
		"stage":   stage,
		"outcome": outcome,
	})
}

// RecordGeneration records a call to the task generation provider.
func RecordGeneration(model string, success bool, duration time.Duration, tasks int) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	labels := map[string]string{"model": model, "status": status}
	_ = observability.TelemetrySystem.Counter(GenerationTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(GenerationDuration, duration, labels)
	if success {
		_ = observability.TelemetrySystem.Gauge(GenerationTasks, float64(tasks), map[string]string{"model": model})
	}
}

// RecordHealthCheck records a health check execution.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
		"check": checkName,
	})
}

// SetServerStartTime records the server start time as a Unix timestamp.
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}
