// Package monitoring evaluates the health of the components an alert depends on.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDegraded ProbeStatus = "degraded"
	StatusDown     ProbeStatus = "down"
)

func (s ProbeStatus) rank() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// ProbeResult captures a single component check.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report aggregates probe results. Status is the worst status observed.
type Report struct {
	Status    ProbeStatus   `json:"status"`
	CheckedAt time.Time     `json:"checked_at"`
	Checks    []ProbeResult `json:"checks"`
}

// Healthy reports whether the service can deliver alerts. Degraded counts as healthy.
func (r Report) Healthy() bool {
	return r.Status != StatusDown
}

// Check is a named component probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck constructs a check. A nil fn always reports down.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "probe not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

// Health runs a fixed set of checks.
type Health struct {
	checks []Check
	now    func() time.Time
}

// NewHealth constructs a Health with checks. Unnamed checks are ignored.
func NewHealth(checks ...Check) *Health {
	h := &Health{now: time.Now}
	for _, check := range checks {
		if check.Name != "" {
			h.checks = append(h.checks, check)
		}
	}
	return h
}

// Evaluate runs every check in registration order.
func (h *Health) Evaluate(ctx context.Context) Report {
	report := Report{
		Status:    StatusUp,
		CheckedAt: h.now().UTC(),
		Checks:    make([]ProbeResult, 0, len(h.checks)),
	}
	for _, check := range h.checks {
		result := run(ctx, check)
		report.Checks = append(report.Checks, result)
		if result.Status.rank() > report.Status.rank() {
			report.Status = result.Status
		}
	}
	return report
}

func run(ctx context.Context, check Check) (result ProbeResult) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: fmt.Sprint(rec)}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
		result.Component = check.Name
	}()

	return check.Run(ctx)
}

// ResultFromError converts err into a probe result. Timeouts count as degraded.
func ResultFromError(err error) ProbeResult {
	if err == nil {
		return ProbeResult{Status: StatusUp}
	}
	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}
	return ProbeResult{Status: status, Details: err.Error()}
}
