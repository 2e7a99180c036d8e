package resumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipelined/internal/artifact"
	"github.com/fyrsmithlabs/pipelined/internal/checkpoint"
)

const instrumentationName = "github.com/fyrsmithlabs/pipelined/internal/resumer"

// Errors for workflow resumption.
var (
	// ErrWorkflowNotFound indicates neither checkpoint nor manifest
	// exists for the id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrCheckpointInvalid indicates the checkpoint failed validation;
	// the wrapping message names the exact missing field or artifact.
	ErrCheckpointInvalid = errors.New("checkpoint invalid")
)

// CheckpointView is the read-only checkpoint surface the resumer needs.
type CheckpointView interface {
	Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error)
	Validate(ctx context.Context, id string) (bool, string)
	ResumePlan(ctx context.Context, id string) (*checkpoint.ResumePlan, error)
	Exists(id string) bool
}

// ManifestView is the read-only manifest surface the resumer needs.
type ManifestView interface {
	ReadManifest(ctx context.Context, id string) (*artifact.Manifest, error)
}

// ResumeContext is everything a caller needs to continue a workflow:
// the original request, the ledger so far, and what remains. No
// execution happens here.
type ResumeContext struct {
	WorkflowID         string    `json:"workflow_id"`
	Request            string    `json:"request"`
	CompletedStages    []string  `json:"completed_stages"`
	NextStage          *string   `json:"next_stage"`
	Remaining          []string  `json:"remaining"`
	ProgressPercentage int       `json:"progress_percentage"`
	Artifacts          []string  `json:"artifacts"`
	CheckpointAt       time.Time `json:"checkpoint_at"`
	AlreadyCompleted   bool      `json:"already_completed"`
}

// Resumer rebuilds resume contexts from durable state.
type Resumer struct {
	checkpoints CheckpointView
	manifests   ManifestView
	logger      *zap.Logger
	tracer      trace.Tracer
}

// New creates a resumer over narrow read-only views, normally backed by
// the checkpoint manager and artifact store.
func New(checkpoints CheckpointView, manifests ManifestView, logger *zap.Logger) (*Resumer, error) {
	if checkpoints == nil {
		return nil, errors.New("checkpoint view is required")
	}
	if manifests == nil {
		return nil, errors.New("manifest view is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resumer{
		checkpoints: checkpoints,
		manifests:   manifests,
		logger:      logger,
		tracer:      otel.Tracer(instrumentationName),
	}, nil
}

// CanResume reports whether a checkpoint exists and validates.
func (r *Resumer) CanResume(ctx context.Context, id string) bool {
	if !r.checkpoints.Exists(id) {
		return false
	}
	valid, _ := r.checkpoints.Validate(ctx, id)
	return valid
}

// Resume validates the checkpoint and reconstructs the resume context.
// A workflow that already ran to completion (no checkpoint left, or an
// exhausted plan) is a non-error result with AlreadyCompleted set.
func (r *Resumer) Resume(ctx context.Context, id string) (*ResumeContext, error) {
	ctx, span := r.tracer.Start(ctx, "resumer.resume")
	defer span.End()
	span.SetAttributes(attribute.String("workflow_id", id))

	cp, err := r.checkpoints.Load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if cp == nil {
		manifest, merr := r.manifests.ReadManifest(ctx, id)
		if merr != nil {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
		}
		// Completion deletes the checkpoint; the manifest outlives it.
		return &ResumeContext{
			WorkflowID:         id,
			Request:            manifest.Request,
			CompletedStages:    manifest.Plan.Canonical,
			Remaining:          []string{},
			ProgressPercentage: 100,
			AlreadyCompleted:   true,
		}, nil
	}

	valid, reason := r.checkpoints.Validate(ctx, id)
	if !valid {
		span.SetAttributes(attribute.String("invalid_reason", reason))
		r.logger.Warn("refusing to resume from invalid checkpoint",
			zap.String("workflow_id", id),
			zap.String("reason", reason),
		)
		return nil, fmt.Errorf("%w: %s", ErrCheckpointInvalid, reason)
	}

	plan, err := r.checkpoints.ResumePlan(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	manifest, err := r.manifests.ReadManifest(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	rc := &ResumeContext{
		WorkflowID:         id,
		Request:            manifest.Request,
		CompletedStages:    plan.CompletedStages,
		NextStage:          plan.NextStage,
		Remaining:          plan.Remaining,
		ProgressPercentage: plan.ProgressPercentage,
		Artifacts:          cp.ArtifactsCreated,
		CheckpointAt:       cp.CreatedAt,
		AlreadyCompleted:   !plan.CanResume,
	}

	r.logger.Info("resume context built",
		zap.String("workflow_id", id),
		zap.Strings("remaining", rc.Remaining),
		zap.Bool("already_completed", rc.AlreadyCompleted),
	)
	return rc, nil
}
