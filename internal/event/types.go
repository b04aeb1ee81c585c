package event

import (
	"encoding/json"
	"time"
)

// Name identifies a category of realtime message.
type Name string

// Inbound event names.
const (
	MetricsUpdate   Name = "metrics-update"
	NewAlert        Name = "new-alert"
	PipelineUpdate  Name = "pipeline-update"
	AnomalyDetected Name = "anomaly-detected"
	AIPrediction    Name = "ai-prediction"
	ServiceHealth   Name = "service-health"
)

// Outbound request names. The remote side answers by pushing a snapshot.
const (
	RequestMetrics       Name = "request-metrics"
	RequestServiceHealth Name = "request-service-health"
)

// Known returns the inbound event names the client dispatches on.
func Known() []Name {
	return []Name{
		MetricsUpdate,
		NewAlert,
		PipelineUpdate,
		AnomalyDetected,
		AIPrediction,
		ServiceHealth,
	}
}

// Event is implemented by every payload type.
type Event interface {
	EventName() Name
}

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

// Metrics is the payload of metrics-update.
type Metrics struct {
	Resource ResourceMetrics `json:"resource"`
	Series   []MetricPoint   `json:"series,omitempty"`
}

// ResourceMetrics is a point-in-time host utilisation sample (percentages).
type ResourceMetrics struct {
	CPU       float64        `json:"cpu"`
	Memory    float64        `json:"memory"`
	Disk      float64        `json:"disk"`
	Network   NetworkTraffic `json:"network"`
	Timestamp time.Time      `json:"timestamp"`
}

// NetworkTraffic holds ingress/egress throughput in bytes per second.
type NetworkTraffic struct {
	Ingress float64 `json:"ingress"`
	Egress  float64 `json:"egress"`
}

// MetricPoint is a single timeline value.
type MetricPoint struct {
	Time     time.Time       `json:"time"`
	Value    float64         `json:"value"`
	Metadata *MetricMetadata `json:"metadata,omitempty"`
}

// MetricMetadata describes where a MetricPoint came from.
type MetricMetadata struct {
	Source    string   `json:"source"`
	Unit      string   `json:"unit"`
	Threshold *float64 `json:"threshold,omitempty"`
}

func (Metrics) EventName() Name { return MetricsUpdate }

// -----------------------------------------------------------------------------
// Alerts
// -----------------------------------------------------------------------------

// Severity grades alerts and anomalies.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Alert is the payload of new-alert.
type Alert struct {
	ID         string         `json:"id"`
	Severity   Severity       `json:"severity"`
	Title      string         `json:"title"`
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
	Prediction string         `json:"prediction,omitempty"`
	Action     string         `json:"action,omitempty"`
	Resolution string         `json:"resolution,omitempty"`
	Impact     string         `json:"impact,omitempty"`
	Metadata   *AlertMetadata `json:"metadata,omitempty"`
}

// AlertMetadata classifies an alert.
type AlertMetadata struct {
	AffectedServices []string `json:"affectedServices"`
	Category         string   `json:"category"`
	Priority         int      `json:"priority"`
}

func (Alert) EventName() Name { return NewAlert }

// -----------------------------------------------------------------------------
// Pipelines
// -----------------------------------------------------------------------------

// Pipeline statuses.
const (
	PipelineRunning   = "running"
	PipelineCompleted = "completed"
	PipelineFailed    = "failed"
)

// Step statuses.
const (
	StepCompleted  = "completed"
	StepInProgress = "in-progress"
	StepPending    = "pending"
	StepFailed     = "failed"
)

// Pipeline is the payload of pipeline-update.
type Pipeline struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"` // "running", "completed", "failed"
	Steps     []Step     `json:"steps"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Trigger   string     `json:"trigger"` // "manual", "automated", "scheduled"
	Branch    string     `json:"branch"`
	Commit    string     `json:"commit"`
}

// Step is a single stage of a pipeline run.
type Step struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Status       string     `json:"status"` // "completed", "in-progress", "pending", "failed"
	Duration     string     `json:"duration"`
	StartTime    *time.Time `json:"startTime,omitempty"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	Logs         []string   `json:"logs,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
}

func (Pipeline) EventName() Name { return PipelineUpdate }

// -----------------------------------------------------------------------------
// Anomalies and predictions
// -----------------------------------------------------------------------------

// Anomaly is the payload of anomaly-detected.
type Anomaly struct {
	Timestamp  time.Time `json:"timestamp"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	Predicted  float64   `json:"predicted"`
	IsAnomaly  bool      `json:"isAnomaly"`
	Confidence float64   `json:"confidence"`
	Severity   Severity  `json:"severity"`
}

func (Anomaly) EventName() Name { return AnomalyDetected }

// Prediction is the payload of ai-prediction: a root cause estimate for an incident.
type Prediction struct {
	IncidentID         string    `json:"incidentId"`
	Timestamp          time.Time `json:"timestamp"`
	Cause              string    `json:"cause"`
	Confidence         float64   `json:"confidence"`
	AffectedComponents []string  `json:"affectedComponents"`
	Recommendations    []string  `json:"recommendations"`
}

func (Prediction) EventName() Name { return AIPrediction }

// -----------------------------------------------------------------------------
// Service health
// -----------------------------------------------------------------------------

// Service statuses.
const (
	ServiceHealthy  = "healthy"
	ServiceDegraded = "degraded"
	ServiceDown     = "down"
)

// Health is the payload of service-health.
type Health struct {
	Services []Service `json:"services"`
}

// Service reports the health of one monitored service.
type Service struct {
	Name         string    `json:"name"`
	Status       string    `json:"status"` // "healthy", "degraded", "down"
	Uptime       string    `json:"uptime"`
	ResponseTime float64   `json:"responseTime"` // milliseconds
	ErrorRate    float64   `json:"errorRate"`    // percent
	LastChecked  time.Time `json:"lastChecked"`
	Dependencies []string  `json:"dependencies,omitempty"`
}

func (Health) EventName() Name { return ServiceHealth }

// -----------------------------------------------------------------------------
// Untyped
// -----------------------------------------------------------------------------

// Raw carries an event whose name has no registered payload type.
type Raw struct {
	Name Name
	Data json.RawMessage
}

func (r Raw) EventName() Name { return r.Name }
