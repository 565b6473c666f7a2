package health

import (
	"context"
	"sync"
	"time"
)

// Status of one component or of the service as a whole.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	default:
		return "unhealthy"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
	// Critical failures mark the whole service unhealthy; non-critical ones
	// only degrade it.
	Critical() bool
}

// CheckFunc adapts a plain function into a Checker.
type CheckFunc struct {
	ComponentName string
	IsCritical    bool
	Fn            func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.ComponentName }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }
func (c CheckFunc) Critical() bool                  { return c.IsCritical }

// ComponentResult is one probe outcome.
type ComponentResult struct {
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report aggregates all probe outcomes.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentResult `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// Manager runs registered checkers on demand.
type Manager struct {
	mu       sync.Mutex
	checkers []Checker
	timeout  time.Duration
}

func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{timeout: timeout}
}

func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	m.checkers = append(m.checkers, c)
	m.mu.Unlock()
}

// Run probes every component concurrently and folds the results: any failed
// critical check makes the service unhealthy, any other failure degrades it.
func (m *Manager) Run(ctx context.Context) Report {
	m.mu.Lock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.Unlock()

	report := Report{
		Status:     StatusHealthy,
		Components: make(map[string]ComponentResult, len(checkers)),
		Timestamp:  time.Now().UTC(),
	}

	type outcome struct {
		name     string
		critical bool
		result   ComponentResult
	}
	results := make(chan outcome, len(checkers))

	var wg sync.WaitGroup
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			start := time.Now()
			err := c.Check(cctx)
			res := ComponentResult{Status: StatusHealthy, Duration: time.Since(start)}
			if err != nil {
				res.Status = StatusUnhealthy
				res.Error = err.Error()
			}
			results <- outcome{name: c.Name(), critical: c.Critical(), result: res}
		}(c)
	}
	wg.Wait()
	close(results)

	for o := range results {
		report.Components[o.name] = o.result
		if o.result.Status == StatusHealthy {
			continue
		}
		if o.critical {
			report.Status = StatusUnhealthy
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	return report
}
