package statefile

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/pipelined/internal/statefile"

// AuditRecord captures one security-relevant persistence event.
type AuditRecord struct {
	Time      time.Time `json:"time"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"`
	Path      string    `json:"path"`
	Component string    `json:"component"`
}

// Auditor emits audit records for persistence operations. Violations are
// always recorded; successes only when verbose is enabled.
type Auditor struct {
	logger  *zap.Logger
	verbose bool

	violations metric.Int64Counter
}

// NewAuditor creates an auditor logging through the given logger.
func NewAuditor(logger *zap.Logger, verbose bool) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Auditor{
		logger:  logger.Named("audit"),
		verbose: verbose,
	}

	meter := otel.Meter(instrumentationName)
	counter, err := meter.Int64Counter(
		"pipelined.statefile.violations_total",
		metric.WithDescription("Total path or persistence violations detected"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		logger.Warn("failed to create violations counter", zap.Error(err))
	} else {
		a.violations = counter
	}

	return a
}

// Violation records a denied operation.
func (a *Auditor) Violation(ctx context.Context, component, op, path string, err error) {
	a.logger.Warn("persistence violation",
		zap.String("operation", op),
		zap.String("status", "denied"),
		zap.String("path", path),
		zap.String("component", component),
		zap.Error(err),
	)
	if a.violations != nil {
		a.violations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("operation", op),
		))
	}
}

// Success records a completed operation when verbose auditing is on.
func (a *Auditor) Success(component, op, path string) {
	if !a.verbose {
		return
	}
	a.logger.Debug("persistence operation",
		zap.String("operation", op),
		zap.String("status", "ok"),
		zap.String("path", path),
		zap.String("component", component),
	)
}
