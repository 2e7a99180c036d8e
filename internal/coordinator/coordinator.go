package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipelined/internal/align"
	"github.com/fyrsmithlabs/pipelined/internal/artifact"
	"github.com/fyrsmithlabs/pipelined/internal/checkpoint"
	"github.com/fyrsmithlabs/pipelined/internal/gitinfo"
	"github.com/fyrsmithlabs/pipelined/internal/invoker"
	"github.com/fyrsmithlabs/pipelined/internal/pipeline"
)

const instrumentationName = "github.com/fyrsmithlabs/pipelined/internal/coordinator"

// Coordinator runs workflows end to end over durable stores.
type Coordinator struct {
	cfg         Config
	gate        *align.Gate
	artifacts   *artifact.Store
	checkpoints *checkpoint.Manager
	invokers    invoker.Invoker
	logger      *zap.Logger

	tracer        trace.Tracer
	meter         metric.Meter
	stageCounter  metric.Int64Counter
	stageDuration metric.Float64Histogram
}

// New creates a coordinator. The invoker is normally an
// invoker.Registry; anything satisfying the interface works.
func New(cfg Config, gate *align.Gate, artifacts *artifact.Store, checkpoints *checkpoint.Manager, invokers invoker.Invoker, logger *zap.Logger) (*Coordinator, error) {
	if gate == nil {
		return nil, errors.New("alignment gate is required")
	}
	if artifacts == nil {
		return nil, errors.New("artifact store is required")
	}
	if checkpoints == nil {
		return nil, errors.New("checkpoint manager is required")
	}
	if invokers == nil {
		return nil, errors.New("invoker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ValidatorTimeout <= 0 {
		cfg.ValidatorTimeout = DefaultConfig().ValidatorTimeout
	}
	if cfg.MaxParallelValidators <= 0 {
		cfg.MaxParallelValidators = DefaultConfig().MaxParallelValidators
	}

	c := &Coordinator{
		cfg:         cfg,
		gate:        gate,
		artifacts:   artifacts,
		checkpoints: checkpoints,
		invokers:    invokers,
		logger:      logger,
		tracer:      otel.Tracer(instrumentationName),
		meter:       otel.Meter(instrumentationName),
	}
	c.initMetrics()

	return c, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (c *Coordinator) initMetrics() {
	var err error

	c.stageCounter, err = c.meter.Int64Counter(
		"pipelined.coordinator.stage_invocations_total",
		metric.WithDescription("Stage invocations by stage and outcome"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		c.logger.Warn("failed to create stage counter", zap.Error(err))
	}

	c.stageDuration, err = c.meter.Float64Histogram(
		"pipelined.coordinator.stage_duration_seconds",
		metric.WithDescription("Stage execution duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		c.logger.Warn("failed to create stage duration histogram", zap.Error(err))
	}
}

// newWorkflowID returns a fresh "wf_"-prefixed, time-ordered id. UUIDv7
// sorts by creation time and contains only filesystem-safe characters.
func newWorkflowID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate workflow id: %w", err)
	}
	return "wf_" + id.String(), nil
}

// StartWorkflow runs the alignment gate and, on a pass, creates the
// workflow: directory, manifest, and initial checkpoint. A rejection
// returns an AlignmentError and leaves zero state on disk.
func (c *Coordinator) StartWorkflow(ctx context.Context, request string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.start_workflow")
	defer span.End()

	decision := c.gate.Evaluate(request)
	if !decision.Aligned {
		span.SetStatus(codes.Error, "alignment rejected")
		span.SetAttributes(attribute.String("rejection_reason", decision.Reason))
		c.logger.Info("request rejected by alignment gate",
			zap.String("reason", decision.Reason),
		)
		return "", &AlignmentError{Reason: decision.Reason, Decision: decision}
	}

	id, err := newWorkflowID()
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("workflow_id", id))

	if _, err := c.artifacts.CreateWorkflowDir(id); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to create workflow directory: %w", err)
	}

	manifest := &artifact.Manifest{
		WorkflowID: id,
		Request:    request,
		Alignment:  decision.Data,
		Plan: artifact.StagePlan{
			Canonical: pipeline.Names(pipeline.CanonicalOrder()),
			Parallel:  pipeline.Names(pipeline.ParallelValidators()),
		},
	}
	if c.cfg.RepositoryPath != "" {
		if snap := gitinfo.Read(c.cfg.RepositoryPath); !snap.Empty() {
			manifest.Repository = &artifact.Repository{
				Branch: snap.Branch,
				Commit: snap.Commit,
				Dirty:  snap.Dirty,
			}
		}
	}
	if _, err := c.artifacts.WriteManifest(ctx, manifest); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to persist manifest: %w", err)
	}

	first := string(pipeline.CanonicalOrder()[0])
	if _, err := c.checkpoints.Create(ctx, &checkpoint.CreateRequest{
		WorkflowID:     id,
		CheckpointType: checkpoint.TypeInitial,
		CurrentStage:   checkpoint.StageRef(first),
	}); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to write initial checkpoint: %w", err)
	}

	c.logger.Info("workflow started",
		zap.String("workflow_id", id),
		zap.String("current_stage", first),
	)
	return id, nil
}

// InvokeStage runs one sequential stage to completion. The stage must
// be the checkpoint's current stage; anything else is rejected so each
// stage runs exactly once per attempt. On success the artifact is
// persisted and the checkpoint advances; on failure the checkpoint is
// untouched and resume retries this stage.
func (c *Coordinator) InvokeStage(ctx context.Context, id, stage string) error {
	ctx, span := c.tracer.Start(ctx, "coordinator.invoke_stage")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow_id", id),
		attribute.String("stage", stage),
	)

	cp, err := c.checkpoints.Load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if cp == nil {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if cp.CurrentStage == nil || *cp.CurrentStage != stage {
		current := "<none>"
		if cp.CurrentStage != nil {
			current = *cp.CurrentStage
		}
		span.SetStatus(codes.Error, "stage not current")
		return fmt.Errorf("%w: requested %q, current %q", ErrStageNotCurrent, stage, current)
	}

	manifest, err := c.artifacts.ReadManifest(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}

	start := time.Now()
	result, err := c.dispatch(ctx, manifest, stage)
	c.recordStage(ctx, stage, err == nil && result.Succeeded(), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %s: %v", ErrStageFailed, stage, err)
	}
	if !result.Succeeded() {
		span.SetStatus(codes.Error, "stage reported failure")
		return fmt.Errorf("%w: %s: %s", ErrStageFailed, stage, result.Error)
	}

	name, err := c.artifacts.WriteArtifact(ctx, id, stage, result.Payload)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to persist %s artifact: %w", stage, err)
	}

	return c.advance(ctx, manifest, cp, checkpoint.TypeStageCompletion, []string{stage}, []string{name})
}

// Run drives a workflow from its current checkpoint to the end: every
// remaining sequential stage in canonical order, checkpointing after
// each, then the parallel validator fan-out. The first sequential
// failure stops the run with the checkpoint still pointing at the
// failed stage so a later Run retries it. A workflow that already
// finished returns nil outcomes and no error.
func (c *Coordinator) Run(ctx context.Context, id string) (map[string]Outcome, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.run")
	defer span.End()
	span.SetAttributes(attribute.String("workflow_id", id))

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cp, err := c.checkpoints.Load(ctx, id)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if cp == nil {
			if _, err := c.artifacts.ReadManifest(ctx, id); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
			}
			// Completion already deleted the checkpoint.
			return nil, nil
		}
		if cp.CurrentStage == nil || !isSequential(*cp.CurrentStage) {
			break
		}
		if err := c.InvokeStage(ctx, id, *cp.CurrentStage); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	return c.InvokeParallelValidators(ctx, id)
}

// InvokeParallelValidators dispatches every validator in the manifest's
// parallel set through a bounded pool, each under its own timeout, and
// blocks for the join. Failures and timeouts are isolated per-validator
// outcomes; the checkpoint then advances by whatever succeeded.
func (c *Coordinator) InvokeParallelValidators(ctx context.Context, id string) (map[string]Outcome, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.invoke_parallel_validators")
	defer span.End()
	span.SetAttributes(attribute.String("workflow_id", id))

	cp, err := c.checkpoints.Load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}

	manifest, err := c.artifacts.ReadManifest(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	validators := manifest.Plan.Parallel
	if len(validators) == 0 {
		validators = pipeline.Names(pipeline.ParallelValidators())
	}
	span.SetAttributes(attribute.Int("validator_count", len(validators)))

	// Fan-out only starts once every sequential stage is in the ledger:
	// the first stage still remaining must be a validator.
	remaining := pipeline.Remaining(pipeline.Stages(manifest.Plan.Canonical), pipeline.Stages(cp.CompletedStages))
	if len(remaining) > 0 && !containsString(validators, string(remaining[0])) {
		span.SetStatus(codes.Error, "sequential stages incomplete")
		return nil, fmt.Errorf("%w: %s still pending", ErrSequentialIncomplete, remaining[0])
	}

	sem := make(chan struct{}, c.cfg.MaxParallelValidators)
	results := make(chan Outcome, len(validators))
	var wg sync.WaitGroup

	for _, stage := range validators {
		wg.Add(1)
		go func(stage string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- c.runValidator(ctx, manifest, stage)
		}(stage)
	}
	wg.Wait()
	close(results)

	outcomes := make(map[string]Outcome, len(validators))
	for out := range results {
		outcomes[out.Stage] = out
	}

	if err := c.advanceAfterValidation(ctx, manifest, cp, outcomes); err != nil {
		span.RecordError(err)
		return outcomes, err
	}
	return outcomes, nil
}

// runValidator runs a single validator under its own deadline and
// converts every way it can end into an Outcome.
func (c *Coordinator) runValidator(ctx context.Context, manifest *artifact.Manifest, stage string) Outcome {
	vctx, cancel := context.WithTimeout(ctx, c.cfg.ValidatorTimeout)
	defer cancel()

	start := time.Now()
	result, err := c.dispatch(vctx, manifest, stage)
	elapsed := time.Since(start)
	c.recordStage(ctx, stage, err == nil && result.Succeeded(), elapsed)

	out := Outcome{Stage: stage, Duration: elapsed}
	switch {
	case err != nil && (errors.Is(err, invoker.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)):
		out.Status = OutcomeTimedOut
		out.Error = err.Error()
	case err != nil:
		out.Status = OutcomeFailed
		out.Error = err.Error()
	case !result.Succeeded():
		out.Status = OutcomeFailed
		out.Error = result.Error
	default:
		name, werr := c.artifacts.WriteArtifact(ctx, manifest.WorkflowID, stage, result.Payload)
		if werr != nil {
			out.Status = OutcomeFailed
			out.Error = werr.Error()
			break
		}
		out.Status = OutcomeSucceeded
		out.Artifact = name
	}

	c.logger.Info("validator finished",
		zap.String("workflow_id", manifest.WorkflowID),
		zap.String("stage", stage),
		zap.String("status", string(out.Status)),
		zap.Duration("duration", elapsed),
	)
	return out
}

// dispatch sends one stage request through the invoker.
func (c *Coordinator) dispatch(ctx context.Context, manifest *artifact.Manifest, stage string) (*invoker.Result, error) {
	input, err := json.Marshal(map[string]string{"request": manifest.Request})
	if err != nil {
		return nil, fmt.Errorf("failed to encode stage input: %w", err)
	}
	return c.invokers.Invoke(ctx, &invoker.Request{
		WorkflowID: manifest.WorkflowID,
		Stage:      stage,
		Input:      input,
	})
}

// advanceAfterValidation extends the completed ledger by the longest
// canonical prefix of validators that succeeded, then writes the
// parallel_validation checkpoint. Untracked validators (not in the
// canonical plan) contribute artifacts but never ledger entries.
func (c *Coordinator) advanceAfterValidation(ctx context.Context, manifest *artifact.Manifest, cp *checkpoint.Checkpoint, outcomes map[string]Outcome) error {
	canonical := pipeline.Stages(manifest.Plan.Canonical)
	completed := pipeline.Stages(cp.CompletedStages)

	var newStages, newArtifacts []string
	for _, stage := range pipeline.Remaining(canonical, completed) {
		out, ok := outcomes[string(stage)]
		if !ok || out.Status != OutcomeSucceeded {
			break
		}
		newStages = append(newStages, string(stage))
		newArtifacts = append(newArtifacts, out.Artifact)
	}
	for _, out := range outcomes {
		if out.Status == OutcomeSucceeded && !containsString(newArtifacts, out.Artifact) && !stageTracked(canonical, out.Stage) {
			newArtifacts = append(newArtifacts, out.Artifact)
		}
	}
	if len(newStages) == 0 && len(newArtifacts) == 0 {
		return nil
	}

	return c.advance(ctx, manifest, cp, checkpoint.TypeParallelValidation, newStages, newArtifacts)
}

// advance appends stages and artifacts to the checkpoint ledger and
// persists it; when the canonical plan is exhausted the checkpoint is
// deleted instead (artifacts persist).
func (c *Coordinator) advance(ctx context.Context, manifest *artifact.Manifest, cp *checkpoint.Checkpoint, kind checkpoint.Type, stages, artifacts []string) error {
	completed := append(append([]string{}, cp.CompletedStages...), stages...)
	created := append(append([]string{}, cp.ArtifactsCreated...), artifacts...)

	canonical := pipeline.Stages(manifest.Plan.Canonical)
	next := pipeline.NextStage(canonical, pipeline.Stages(completed))

	if next == "" {
		if err := c.checkpoints.Delete(ctx, manifest.WorkflowID); err != nil {
			return fmt.Errorf("failed to delete checkpoint on completion: %w", err)
		}
		c.logger.Info("workflow completed",
			zap.String("workflow_id", manifest.WorkflowID),
			zap.Strings("completed_stages", completed),
		)
		return nil
	}

	_, err := c.checkpoints.Create(ctx, &checkpoint.CreateRequest{
		WorkflowID:       manifest.WorkflowID,
		CheckpointType:   kind,
		CompletedStages:  completed,
		CurrentStage:     checkpoint.StageRef(string(next)),
		ArtifactsCreated: created,
		Metadata:         cp.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	return nil
}

// GetWorkflowStatus derives the progress view for a workflow. Pure
// read: nothing is executed or written.
func (c *Coordinator) GetWorkflowStatus(ctx context.Context, id string) (*ProgressState, error) {
	manifest, err := c.artifacts.ReadManifest(ctx, id)
	if err != nil {
		if errors.Is(err, artifact.ErrManifestNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
		}
		return nil, err
	}

	state := &ProgressState{
		WorkflowID: id,
		Request:    manifest.Request,
	}

	cp, err := c.checkpoints.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		// Manifest without a checkpoint: the workflow ran to completion.
		state.Completed = true
		state.CompletedStages = manifest.Plan.Canonical
		state.Remaining = []string{}
		state.ProgressPercentage = 100
		return state, nil
	}

	plan, err := c.checkpoints.ResumePlan(ctx, id)
	if err != nil {
		return nil, err
	}
	state.CompletedStages = plan.CompletedStages
	state.CurrentStage = plan.NextStage
	state.Remaining = plan.Remaining
	state.ProgressPercentage = plan.ProgressPercentage
	state.CheckpointAt = &cp.CreatedAt
	return state, nil
}

// recordStage records the per-stage counter and duration.
func (c *Coordinator) recordStage(ctx context.Context, stage string, ok bool, elapsed time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	if c.stageCounter != nil {
		c.stageCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("outcome", outcome),
		))
	}
	if c.stageDuration != nil {
		c.stageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("stage", stage),
		))
	}
}

func isSequential(stage string) bool {
	for _, s := range pipeline.SequentialStages() {
		if string(s) == stage {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func stageTracked(canonical []pipeline.Stage, stage string) bool {
	for _, s := range canonical {
		if string(s) == stage {
			return true
		}
	}
	return false
}
