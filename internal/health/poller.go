package health

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/service/ports"
)

const (
	DefaultSchedule = "@every 10s"

	StatusOnline   = "online"
	StatusDegraded = "degraded"

	DBConnected    = "connected"
	DBDisconnected = "disconnected"

	probeTimeout = 3 * time.Second
)

type ActiveCounter interface {
	CountActive(ctx context.Context) (int, error)
}

type Dependencies struct {
	Probe       ports.HealthProbe
	Keys        ActiveCounter
	ProjectRoot string
	Schedule    string
	Now         func() time.Time
}

// Poller refreshes a cached HealthStatus on a cron schedule. Checks only
// read; they never change credentials or files.
type Poller struct {
	deps     Dependencies
	started  time.Time
	schedule cronv3.Schedule

	mu      sync.RWMutex
	last    domain.HealthStatus
	checked bool

	cron *cronv3.Cron
}

func NewPoller(deps Dependencies) (*Poller, error) {
	if deps.Probe == nil {
		return nil, errors.New("health probe is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	raw := strings.TrimSpace(deps.Schedule)
	if raw == "" {
		raw = DefaultSchedule
	}
	parser := cronv3.NewParser(cronv3.SecondOptional | cronv3.Minute | cronv3.Hour | cronv3.Dom | cronv3.Month | cronv3.Dow | cronv3.Descriptor)
	schedule, err := parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid health schedule %q: %w", raw, err)
	}
	deps.Schedule = raw
	return &Poller{deps: deps, started: deps.Now(), schedule: schedule}, nil
}

// Start runs one check immediately and then one per schedule tick.
func (p *Poller) Start() {
	p.Check(context.Background())
	p.cron = cronv3.New()
	p.cron.Schedule(p.schedule, cronv3.FuncJob(func() {
		p.Check(context.Background())
	}))
	p.cron.Start()
	log.Printf("health poller started schedule=%q", p.deps.Schedule)
}

func (p *Poller) Stop(ctx context.Context) {
	if p.cron == nil {
		return
	}
	select {
	case <-p.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Check probes every dependency and caches the result.
func (p *Poller) Check(ctx context.Context) domain.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	now := p.deps.Now()
	status := domain.HealthStatus{
		Status:        StatusOnline,
		DB:            DBConnected,
		OS:            runtime.GOOS + "/" + runtime.GOARCH,
		UptimeSeconds: int64(now.Sub(p.started) / time.Second),
		ProjectRoot:   p.deps.ProjectRoot,
		CheckedAt:     now.UTC().Format(time.RFC3339),
	}
	if err := p.deps.Probe.Ping(ctx); err != nil {
		log.Printf("health probe failed name=%s err=%v", p.deps.Probe.Name(), err)
		status.Status = StatusDegraded
		status.DB = DBDisconnected
	}
	if p.deps.Keys != nil && status.DB == DBConnected {
		count, err := p.deps.Keys.CountActive(ctx)
		if err != nil {
			log.Printf("health active key count failed err=%v", err)
			status.Status = StatusDegraded
		}
		status.ActiveKeys = count
	}

	p.mu.Lock()
	prev := p.last
	p.last = status
	p.checked = true
	p.mu.Unlock()
	if prev.Status != "" && prev.Status != status.Status {
		log.Printf("health status changed from=%s to=%s", prev.Status, status.Status)
	}
	return status
}

// Snapshot returns the last cached status, checking once if none exists.
func (p *Poller) Snapshot(ctx context.Context) domain.HealthStatus {
	p.mu.RLock()
	last, checked := p.last, p.checked
	p.mu.RUnlock()
	if checked {
		return last
	}
	return p.Check(ctx)
}
