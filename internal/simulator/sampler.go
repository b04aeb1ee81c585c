package simulator

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/opsboard/realtime/internal/event"
)

// Sampler produces resource metrics.
type Sampler interface {
	Sample() event.ResourceMetrics
}

// HostSampler reads utilisation of the local host. Any value gopsutil cannot
// provide is replaced by a random one so the stream never stalls.
type HostSampler struct {
	mu       sync.Mutex
	rng      *rand.Rand
	diskPath string

	lastNetAt time.Time
	lastRecv  uint64
	lastSent  uint64
}

// NewHostSampler creates a HostSampler reporting disk usage for path.
func NewHostSampler(path string) *HostSampler {
	if path == "" {
		path = "/"
	}
	// The first non-blocking cpu.Percent call only records a baseline.
	cpu.Percent(0, false)

	return &HostSampler{
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		diskPath: path,
	}
}

func (h *HostSampler) Sample() event.ResourceMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	m := event.ResourceMetrics{Timestamp: now.UTC()}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		m.CPU = round2(percents[0])
	} else {
		m.CPU = round2(20 + h.rng.Float64()*60)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		m.Memory = round2(vm.UsedPercent)
	} else {
		m.Memory = round2(30 + h.rng.Float64()*50)
	}

	if usage, err := disk.Usage(h.diskPath); err == nil {
		m.Disk = round2(usage.UsedPercent)
	} else {
		m.Disk = round2(40 + h.rng.Float64()*40)
	}

	m.Network = h.network(now)
	return m
}

// network returns throughput since the previous sample.
func (h *HostSampler) network(now time.Time) event.NetworkTraffic {
	counters, err := net.IOCounters(false)
	if err != nil || len(counters) == 0 {
		return event.NetworkTraffic{
			Ingress: round2(h.rng.Float64() * 1e6),
			Egress:  round2(h.rng.Float64() * 1e6),
		}
	}

	recv, sent := counters[0].BytesRecv, counters[0].BytesSent
	var traffic event.NetworkTraffic
	if !h.lastNetAt.IsZero() && recv >= h.lastRecv && sent >= h.lastSent {
		secs := now.Sub(h.lastNetAt).Seconds()
		if secs > 0 {
			traffic.Ingress = round2(float64(recv-h.lastRecv) / secs)
			traffic.Egress = round2(float64(sent-h.lastSent) / secs)
		}
	}

	h.lastNetAt, h.lastRecv, h.lastSent = now, recv, sent
	return traffic
}

// RandomSampler produces plausible random metrics.
type RandomSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSampler creates a deterministic RandomSampler.
func NewRandomSampler(seed uint64) *RandomSampler {
	return &RandomSampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *RandomSampler) Sample() event.ResourceMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	return event.ResourceMetrics{
		CPU:    round2(20 + r.rng.Float64()*60),
		Memory: round2(30 + r.rng.Float64()*50),
		Disk:   round2(40 + r.rng.Float64()*40),
		Network: event.NetworkTraffic{
			Ingress: round2(r.rng.Float64() * 1e6),
			Egress:  round2(r.rng.Float64() * 1e6),
		},
		Timestamp: time.Now().UTC(),
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
