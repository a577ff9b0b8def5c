// Package health reports readiness from the pings of the backing stores and the policy engine.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function (e.g. (*sql.DB).PingContext) to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// PolicyChecker is the OPA evaluator's self-check.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// PolicyPinger adapts a PolicyChecker to Pinger.
func PolicyPinger(p PolicyChecker) Pinger {
	return PingFunc(p.HealthCheck)
}

// Status values in a Report.
const (
	StatusServing    = "serving"
	StatusNotServing = "not_serving"
)

// Report is the outcome of one check. Components maps each dependency to "ok" or its error.
type Report struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// Serving reports whether every component answered.
func (r Report) Serving() bool { return r.Status == StatusServing }

// Checker pings its components concurrently, each under a shared timeout.
type Checker struct {
	mu         sync.RWMutex
	components map[string]Pinger
	timeout    time.Duration
}

// NewChecker returns a Checker with no components. timeout <= 0 selects 2s.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{components: make(map[string]Pinger), timeout: timeout}
}

// Add registers a component. A nil pinger is ignored.
func (c *Checker) Add(name string, p Pinger) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = p
}

// Names returns the registered component names in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.components))
	for n := range c.components {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check pings every component. With no components the service is serving.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	components := make(map[string]Pinger, len(c.components))
	for n, p := range c.components {
		components[n] = p
	}
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	report := Report{Status: StatusServing, Components: make(map[string]string, len(components))}
	for name, p := range components {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			result := "ok"
			if err := p.Ping(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			report.Components[name] = result
			if result != "ok" {
				report.Status = StatusNotServing
			}
		}(name, p)
	}
	wg.Wait()
	return report
}
