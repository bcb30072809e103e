// internal/audit/audit.go
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Check is a hypothesis about registry state, measured as a single number.
type Check struct {
	Name       string
	Hypothesis string
	Measure    func(context.Context) (float64, error)
	Threshold  Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Holds reports whether value satisfies the threshold. Unknown operators never hold.
func (t Threshold) Holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

// Result is the outcome of one check.
type Result struct {
	Name       string  `json:"name"`
	Hypothesis string  `json:"hypothesis"`
	Operator   string  `json:"operator"`
	Expected   float64 `json:"expected"`
	Actual     float64 `json:"actual"`
	Passed     bool    `json:"passed"`
	Error      string  `json:"error,omitempty"`
}

// Report collects every check of one run.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Passed     bool          `json:"passed"`
	Results    []Result      `json:"results"`
	Violations []Result      `json:"violations"`
}

// Engine runs registered checks and keeps the latest report.
type Engine struct {
	tracer trace.Tracer
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	checks []Check
	last   *Report
}

type Option func(*Engine)

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer("libraledger/audit") }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l.With().Str("component", "audit").Logger() }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tracer: otel.Tracer("libraledger/audit"),
		logger: zerolog.Nop(),
		now:    time.Now,
		checks: make([]Check, 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds checks to the suite.
func (e *Engine) Register(checks ...Check) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checks = append(e.checks, checks...)
}

// Checks returns a copy of the registered checks.
func (e *Engine) Checks() []Check {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Check, len(e.checks))
	copy(out, e.checks)
	return out
}

// Last returns the most recent report, if any.
func (e *Engine) Last() (Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Report{}, false
	}
	return *e.last, true
}

// Run measures every check. A check whose measurement fails counts as a violation.
func (e *Engine) Run(ctx context.Context) Report {
	checks := e.Checks()

	ctx, span := e.tracer.Start(ctx, "audit.run",
		trace.WithAttributes(attribute.Int("audit.checks", len(checks))),
	)
	defer span.End()

	report := Report{
		StartedAt:  e.now(),
		Passed:     true,
		Results:    make([]Result, 0, len(checks)),
		Violations: make([]Result, 0),
	}

	for _, c := range checks {
		res := Result{
			Name:       c.Name,
			Hypothesis: c.Hypothesis,
			Operator:   c.Threshold.Operator,
			Expected:   c.Threshold.Value,
		}

		value, err := c.Measure(ctx)
		switch {
		case err != nil:
			res.Actual = -1
			res.Error = err.Error()
			span.RecordError(err, trace.WithAttributes(attribute.String("check.name", c.Name)))
		default:
			res.Actual = value
			res.Passed = c.Threshold.Holds(value)
		}

		span.AddEvent("check.measured", trace.WithAttributes(
			attribute.String("check.name", c.Name),
			attribute.Float64("check.value", res.Actual),
			attribute.Bool("check.passed", res.Passed),
		))

		if !res.Passed {
			report.Passed = false
			report.Violations = append(report.Violations, res)
			e.logger.Warn().
				Str("check", c.Name).
				Float64("expected", res.Expected).
				Float64("actual", res.Actual).
				Str("error", res.Error).
				Msg("audit check violated")
		}
		report.Results = append(report.Results, res)
	}

	report.Duration = e.now().Sub(report.StartedAt)

	span.SetAttributes(
		attribute.Bool("audit.passed", report.Passed),
		attribute.Int("audit.violations", len(report.Violations)),
	)
	if !report.Passed {
		span.SetStatus(codes.Error, "audit violations detected")
	}

	e.mu.Lock()
	e.last = &report
	e.mu.Unlock()

	return report
}
