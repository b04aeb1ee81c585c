package simulator

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsboard/realtime/internal/event"
)

var (
	services = []string{"api-gateway", "auth-service", "billing", "search", "notifications"}
	metrics  = []string{"cpu", "memory", "latency_p99", "error_rate"}

	pipelineSteps = []string{"checkout", "build", "test", "deploy"}
	branches      = []string{"main", "release", "feature/alerts"}
	triggers      = []string{"manual", "automated", "scheduled"}

	alertTitles = map[event.Severity][]string{
		event.SeverityHigh:   {"Database connection pool exhausted", "Error rate above 5%"},
		event.SeverityMedium: {"Elevated p99 latency", "Disk usage above 80%"},
		event.SeverityLow:    {"Certificate expires in 30 days", "Deprecated API called"},
	}
	causes = []string{
		"Connection leak after recent deploy",
		"Traffic spike from batch job",
		"Slow query on orders table",
		"Upstream dependency degraded",
	}
)

// generator builds simulated events. Safe for concurrent use.
type generator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	sampler  Sampler
	now      func() time.Time
	pipeline *event.Pipeline
	series   []event.MetricPoint
}

func newGenerator(sampler Sampler, seed uint64) *generator {
	return &generator{
		rng:     rand.New(rand.NewPCG(seed, seed+1)),
		sampler: sampler,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// tick returns the events broadcast on one interval.
func (g *generator) tick() []event.Event {
	out := []event.Event{g.metrics(), g.pipelineUpdate()}

	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()

	if roll < 0.3 {
		out = append(out, g.alert())
	}
	if roll < 0.2 {
		out = append(out, g.anomaly())
	}
	if roll < 0.1 {
		out = append(out, g.prediction())
	}
	out = append(out, g.health())
	return out
}

func (g *generator) metrics() event.Metrics {
	sample := g.sampler.Sample()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.series = append(g.series, event.MetricPoint{
		Time:  sample.Timestamp,
		Value: sample.CPU,
		Metadata: &event.MetricMetadata{
			Source: "host",
			Unit:   "percent",
		},
	})
	if len(g.series) > 30 {
		g.series = g.series[len(g.series)-30:]
	}

	series := make([]event.MetricPoint, len(g.series))
	copy(series, g.series)
	return event.Metrics{Resource: sample, Series: series}
}

func (g *generator) alert() event.Alert {
	g.mu.Lock()
	defer g.mu.Unlock()

	severities := []event.Severity{event.SeverityHigh, event.SeverityMedium, event.SeverityLow}
	sev := severities[g.rng.IntN(len(severities))]
	titles := alertTitles[sev]
	svc := services[g.rng.IntN(len(services))]

	return event.Alert{
		ID:        uuid.NewString(),
		Severity:  sev,
		Title:     titles[g.rng.IntN(len(titles))],
		Source:    svc,
		Timestamp: g.now(),
		Metadata: &event.AlertMetadata{
			AffectedServices: []string{svc},
			Category:         "infrastructure",
			Priority:         g.rng.IntN(5) + 1,
		},
	}
}

// pipelineUpdate advances the current pipeline by one step, starting a new
// run once the previous one finished.
func (g *generator) pipelineUpdate() event.Pipeline {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if g.pipeline == nil || g.pipeline.Status != event.PipelineRunning {
		p := &event.Pipeline{
			ID:        uuid.NewString(),
			Name:      "deploy-" + services[g.rng.IntN(len(services))],
			Status:    event.PipelineRunning,
			StartTime: now,
			Trigger:   triggers[g.rng.IntN(len(triggers))],
			Branch:    branches[g.rng.IntN(len(branches))],
			Commit:    fmt.Sprintf("%07x", g.rng.Uint32()&0xfffffff),
		}
		for i, name := range pipelineSteps {
			p.Steps = append(p.Steps, event.Step{
				ID:     fmt.Sprintf("%s-%d", p.ID[:8], i),
				Name:   name,
				Status: event.StepPending,
			})
		}
		started := now
		p.Steps[0].Status = event.StepInProgress
		p.Steps[0].StartTime = &started
		g.pipeline = p
		return clonePipeline(p)
	}

	p := g.pipeline
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Status != event.StepInProgress {
			continue
		}

		ended := now
		step.EndTime = &ended
		if step.StartTime != nil {
			step.Duration = ended.Sub(*step.StartTime).Round(time.Second).String()
		}

		if g.rng.Float64() < 0.05 {
			step.Status = event.StepFailed
			step.Logs = append(step.Logs, step.Name+" failed")
			p.Status = event.PipelineFailed
			p.EndTime = &ended
			break
		}

		step.Status = event.StepCompleted
		if i+1 < len(p.Steps) {
			started := now
			p.Steps[i+1].Status = event.StepInProgress
			p.Steps[i+1].StartTime = &started
		} else {
			p.Status = event.PipelineCompleted
			p.EndTime = &ended
		}
		break
	}

	return clonePipeline(p)
}

func clonePipeline(p *event.Pipeline) event.Pipeline {
	out := *p
	out.Steps = make([]event.Step, len(p.Steps))
	copy(out.Steps, p.Steps)
	return out
}

func (g *generator) anomaly() event.Anomaly {
	g.mu.Lock()
	defer g.mu.Unlock()

	predicted := 40 + g.rng.Float64()*20
	value := predicted * (1.5 + g.rng.Float64())
	sev := event.SeverityMedium
	if value > predicted*2 {
		sev = event.SeverityHigh
	}

	return event.Anomaly{
		Timestamp:  g.now(),
		Metric:     metrics[g.rng.IntN(len(metrics))],
		Value:      round2(value),
		Predicted:  round2(predicted),
		IsAnomaly:  true,
		Confidence: round2(0.7 + g.rng.Float64()*0.3),
		Severity:   sev,
	}
}

func (g *generator) prediction() event.Prediction {
	g.mu.Lock()
	defer g.mu.Unlock()

	svc := services[g.rng.IntN(len(services))]
	return event.Prediction{
		IncidentID:         uuid.NewString(),
		Timestamp:          g.now(),
		Cause:              causes[g.rng.IntN(len(causes))],
		Confidence:         round2(0.5 + g.rng.Float64()*0.5),
		AffectedComponents: []string{svc},
		Recommendations: []string{
			"Roll back the latest deploy of " + svc,
			"Scale " + svc + " horizontally",
		},
	}
}

func (g *generator) health() event.Health {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	h := event.Health{Services: make([]event.Service, 0, len(services))}
	for _, name := range services {
		status := event.ServiceHealthy
		errRate := g.rng.Float64()
		switch roll := g.rng.Float64(); {
		case roll < 0.03:
			status = event.ServiceDown
			errRate = 100
		case roll < 0.12:
			status = event.ServiceDegraded
			errRate = 2 + g.rng.Float64()*8
		}

		h.Services = append(h.Services, event.Service{
			Name:         name,
			Status:       status,
			Uptime:       fmt.Sprintf("%.2f%%", 99+g.rng.Float64()),
			ResponseTime: round2(20 + g.rng.Float64()*180),
			ErrorRate:    round2(errRate),
			LastChecked:  now,
		})
	}
	return h
}
