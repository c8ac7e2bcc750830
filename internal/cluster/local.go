// Package cluster adapts execution backends to the orchestrator: an
// in-process evaluator for development and single-node deployments, and a
// remote client for an external MPC cluster.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/sentinel/mpc-engine/internal/model"
	"github.com/sentinel/mpc-engine/internal/sealing"
	"github.com/sentinel/mpc-engine/internal/store"
)

// ErrQueueFull is returned by Local.Queue when every worker is busy and the
// queue is at capacity.
var ErrQueueFull = errors.New("cluster: queue is full")

// CallbackHandler receives each job's single outcome.
type CallbackHandler interface {
	Handle(ctx context.Context, cb model.Callback) (*model.Event, error)
}

// Local evaluates circuits in-process on a bounded worker pool. Records and
// inputs are decrypted inside the worker and results are re-encrypted before
// they leave it.
type Local struct {
	ctx     context.Context
	store   store.Store
	enclave *sealing.Enclave
	handler CallbackHandler
	pool    pond.Pool
	now     func() time.Time
}

// NewLocal creates a local cluster. Jobs run under ctx, not under the
// context of the request that queued them.
func NewLocal(ctx context.Context, st store.Store, enc *sealing.Enclave, h CallbackHandler, workers, queueSize int) *Local {
	return &Local{
		ctx:     ctx,
		store:   st,
		enclave: enc,
		handler: h,
		pool: pond.NewPool(workers,
			pond.WithContext(ctx),
			pond.WithQueueSize(queueSize),
			pond.WithNonBlocking(true),
		),
		now: time.Now,
	}
}

// PublicKey is the key clients seal inline inputs to.
func (l *Local) PublicKey() model.ID { return l.enclave.PublicKey() }

// Queue schedules job for execution and returns immediately.
func (l *Local) Queue(_ context.Context, job model.QueuedJob) error {
	if err := l.pool.Go(func() { l.run(job) }); err != nil {
		if errors.Is(err, pond.ErrQueueFull) {
			return ErrQueueFull
		}
		return fmt.Errorf("cluster: %w", err)
	}
	return nil
}

// Stop waits for running jobs and rejects new ones.
func (l *Local) Stop() {
	l.pool.StopAndWait()
}

func (l *Local) run(qj model.QueuedJob) {
	ctx := l.ctx
	job := &qj.Job
	if err := l.store.MarkExecuting(ctx, job.Key); err != nil {
		slog.Error("cluster could not accept job", "key", job.Key.String(), "err", err)
		return
	}

	var outcome model.Outcome
	out, err := l.evaluate(ctx, job)
	if err != nil {
		outcome = model.Aborted{Reason: model.PublicReason(err), Kind: model.ErrorKind(err)}
	} else {
		outcome = model.Success{Output: out}
	}

	_, err = l.handler.Handle(ctx, model.Callback{Key: job.Key, Token: qj.Token, Outcome: outcome})
	if err != nil && !errors.Is(err, model.ErrAbortedComputation) {
		slog.Error("callback failed", "key", job.Key.String(), "err", err)
	}
}
