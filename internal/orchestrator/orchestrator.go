// Package orchestrator accepts computation requests, persists them as queued
// jobs and hands them to the configured cluster.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentinel/mpc-engine/internal/capability"
	"github.com/sentinel/mpc-engine/internal/circuit"
	"github.com/sentinel/mpc-engine/internal/metrics"
	"github.com/sentinel/mpc-engine/internal/model"
	"github.com/sentinel/mpc-engine/internal/store"
)

// Cluster executes queued jobs and later reports each outcome through the
// callback dispatcher.
type Cluster interface {
	Queue(ctx context.Context, job model.QueuedJob) error
}

// Request is one computation submission. The circuit and the records it
// reads are named by Args.
type Request struct {
	CorrelationID uint64
	Args          model.Args
	// Inputs are client-encrypted values sealed to the cluster key.
	Inputs [][]byte
}

// Orchestrator queues computations. It never waits for a result.
type Orchestrator struct {
	store   store.Store
	cluster Cluster
	issuer  *capability.Issuer
	now     func() time.Time
}

// New creates an orchestrator. A nil cluster is allowed; every submission
// then fails with model.ErrClusterNotSet.
func New(st store.Store, cl Cluster, iss *capability.Issuer) *Orchestrator {
	return &Orchestrator{
		store:   st,
		cluster: cl,
		issuer:  iss,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates req, persists a queued job and hands it to the cluster.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (handle model.JobHandle, err error) {
	defer func() {
		if err != nil {
			metrics.SubmitRejections.WithLabelValues(model.ErrorKind(err)).Inc()
		}
	}()

	if o.cluster == nil {
		return model.JobHandle{}, model.ErrClusterNotSet
	}
	if req.Args == nil {
		return model.JobHandle{}, fmt.Errorf("%w: args are required", model.ErrInvalidArguments)
	}
	def, err := circuit.Lookup(req.Args.Circuit())
	if err != nil {
		return model.JobHandle{}, err
	}
	if err := req.Args.Validate(); err != nil {
		return model.JobHandle{}, err
	}
	if len(req.Inputs) != def.Inputs {
		return model.JobHandle{}, fmt.Errorf("%w: %s takes %d encrypted inputs, got %d",
			model.ErrInvalidArguments, def.ID, def.Inputs, len(req.Inputs))
	}
	for i, in := range req.Inputs {
		if len(in) == 0 {
			return model.JobHandle{}, fmt.Errorf("%w: input %d is empty", model.ErrInvalidArguments, i)
		}
	}

	refs := req.Args.Refs()
	for _, ref := range refs {
		if _, err := o.store.GetRecord(ctx, ref); err != nil {
			return model.JobHandle{}, err
		}
	}

	now := o.now()
	job := &model.Job{
		ID:        uuid.NewString(),
		Key:       model.JobKey{Circuit: def.ID, CorrelationID: req.CorrelationID},
		Args:      req.Args,
		Refs:      refs,
		Inputs:    req.Inputs,
		State:     model.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return model.JobHandle{}, err
	}

	token, err := o.issuer.Issue(job)
	if err != nil {
		o.abort(ctx, job, err)
		return model.JobHandle{}, err
	}
	if err := o.cluster.Queue(ctx, model.QueuedJob{Job: *job.Clone(), Token: token}); err != nil {
		o.abort(ctx, job, err)
		return model.JobHandle{}, fmt.Errorf("queue %s: %w", job.Key, err)
	}

	metrics.JobsSubmitted.WithLabelValues(string(def.ID)).Inc()
	slog.Info("job submitted",
		"circuit", def.ID,
		"correlation_id", req.CorrelationID,
		"job_id", job.ID,
		"refs", len(refs),
	)
	return model.JobHandle{JobID: job.ID, Key: job.Key, State: model.JobQueued}, nil
}

// abort retires a job the cluster never received. No event is emitted.
func (o *Orchestrator) abort(ctx context.Context, job *model.Job, cause error) {
	_, err := o.store.FinishJob(context.WithoutCancel(ctx), job.Key, model.Finish{
		JobID:  job.ID,
		State:  model.JobAborted,
		Reason: cause.Error(),
		At:     o.now(),
	})
	if err != nil && !errors.Is(err, model.ErrDuplicateCallback) {
		slog.Error("failed to abort unqueued job", "key", job.Key.String(), "err", err)
		return
	}
	slog.Warn("job aborted before queueing", "key", job.Key.String(), "reason", cause.Error())
}

// Accept records that the cluster has started executing the job.
func (o *Orchestrator) Accept(ctx context.Context, key model.JobKey) error {
	if err := o.store.MarkExecuting(ctx, key); err != nil {
		return err
	}
	slog.Debug("job accepted", "key", key.String())
	return nil
}

// Job returns the current state of one job.
func (o *Orchestrator) Job(ctx context.Context, key model.JobKey) (*model.Job, error) {
	return o.store.GetJob(ctx, key)
}

// Jobs lists jobs in state, or all jobs when state is empty.
func (o *Orchestrator) Jobs(ctx context.Context, state model.JobState) ([]model.Job, error) {
	return o.store.ListJobs(ctx, state)
}
