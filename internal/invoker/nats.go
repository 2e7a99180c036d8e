package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/pipelined/internal/invoker"

// NATSInvoker dispatches stages over NATS request/reply. Each stage is
// addressed at "<prefix>.<stage>"; the collaborator subscribed there
// answers with a JSON-encoded Result.
type NATSInvoker struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewNATSInvoker creates an invoker over an established connection.
// requestTimeout caps requests whose context carries no deadline of its
// own; zero disables the cap.
func NewNATSInvoker(conn *nats.Conn, subjectPrefix string, requestTimeout time.Duration, logger *zap.Logger) (*NATSInvoker, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	if subjectPrefix == "" {
		return nil, errors.New("subject prefix is required")
	}
	if requestTimeout < 0 {
		return nil, errors.New("request timeout must not be negative")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NATSInvoker{
		conn:    conn,
		prefix:  subjectPrefix,
		timeout: requestTimeout,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
	}, nil
}

// Subject returns the subject a stage is addressed at.
func (n *NATSInvoker) Subject(stage string) string {
	return n.prefix + "." + stage
}

// Invoke sends the request and waits for the collaborator's reply until
// ctx expires. A missing collaborator or an expired deadline maps to
// ErrTimeout so callers treat both as the stage not answering.
func (n *NATSInvoker) Invoke(ctx context.Context, req *Request) (*Result, error) {
	ctx, cancel := withRequestDeadline(ctx, n.timeout)
	defer cancel()

	ctx, span := n.tracer.Start(ctx, "invoker.nats.invoke")
	defer span.End()

	subject := n.Subject(req.Stage)
	span.SetAttributes(
		attribute.String("workflow_id", req.WorkflowID),
		attribute.String("stage", req.Stage),
		attribute.String("subject", subject),
	)

	data, err := json.Marshal(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to encode stage request: %w", err)
	}

	msg, err := n.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) || errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("%w: stage %s on %s: %v", ErrTimeout, req.Stage, subject, err)
		}
		return nil, fmt.Errorf("stage %s request failed: %w", req.Stage, err)
	}

	var result Result
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("stage %s answered with malformed result: %w", req.Stage, err)
	}

	n.logger.Debug("stage answered",
		zap.String("workflow_id", req.WorkflowID),
		zap.String("stage", req.Stage),
		zap.String("status", string(result.Status)),
	)
	return &result, nil
}

// withRequestDeadline caps a request that arrived with no deadline. A
// caller-supplied deadline always wins.
func withRequestDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
