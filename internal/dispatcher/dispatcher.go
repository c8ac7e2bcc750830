// Package dispatcher applies cluster callbacks: it authenticates each one,
// commits the job's terminal transition and emits the resulting event.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentinel/mpc-engine/internal/capability"
	"github.com/sentinel/mpc-engine/internal/circuit"
	"github.com/sentinel/mpc-engine/internal/events"
	"github.com/sentinel/mpc-engine/internal/metrics"
	"github.com/sentinel/mpc-engine/internal/model"
	"github.com/sentinel/mpc-engine/internal/store"
)

// Dispatcher is the only path by which a job reaches a terminal state after
// it was queued.
type Dispatcher struct {
	store  store.Store
	issuer *capability.Issuer
	sink   events.Sink
	now    func() time.Time
}

// New creates a dispatcher. A nil sink discards events.
func New(st store.Store, iss *capability.Issuer, sink events.Sink) *Dispatcher {
	return &Dispatcher{
		store:  st,
		issuer: iss,
		sink:   sink,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle applies cb. On success it returns the published event. An aborted
// outcome is recorded and reported as model.ErrAbortedComputation.
func (d *Dispatcher) Handle(ctx context.Context, cb model.Callback) (ev *model.Event, err error) {
	defer func() {
		if err != nil && !errors.Is(err, model.ErrAbortedComputation) {
			metrics.CallbackRejections.WithLabelValues(model.ErrorKind(err)).Inc()
			slog.Warn("callback rejected", "key", cb.Key.String(), "err", err)
		}
	}()

	job, err := d.store.GetJob(ctx, cb.Key)
	if err != nil {
		return nil, err
	}
	if err := d.issuer.Verify(cb.Token, job); err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return nil, fmt.Errorf("%w: job %s is already %s", model.ErrDuplicateCallback, job.Key, job.State)
	}

	switch out := cb.Outcome.(type) {
	case model.Success:
		return d.complete(ctx, job, out.Output)
	case model.Aborted:
		return nil, d.abort(ctx, job, out)
	default:
		return nil, fmt.Errorf("%w: callback carries no outcome", model.ErrMalformedOutput)
	}
}

func (d *Dispatcher) complete(ctx context.Context, job *model.Job, out model.Output) (*model.Event, error) {
	def, err := circuit.Lookup(job.Key.Circuit)
	if err != nil {
		return nil, err
	}
	if err := def.CheckOutput(job.Args, out); err != nil {
		return nil, err
	}

	fin := model.Finish{JobID: job.ID, State: model.JobCompleted, At: d.now()}
	if out.Kind == model.OutputSealedRecord {
		fin.Write = &model.RecordWrite{Ref: *out.Ref, Ciphertext: out.Ciphertext}
	}
	rec, err := d.store.FinishJob(ctx, job.Key, fin)
	if err != nil {
		return nil, err
	}
	d.observe(job, fin, "success")

	ev := &model.Event{
		ID:            uuid.NewString(),
		Kind:          def.Event,
		Circuit:       def.ID,
		CorrelationID: job.Key.CorrelationID,
		Payload:       def.Payload(out, rec),
		Timestamp:     fin.At.Unix(),
	}
	d.publish(ctx, ev)

	attrs := []any{"key", job.Key.String(), "event", ev.Kind}
	if rec != nil {
		attrs = append(attrs, "record", rec.Ref().String(), "version", rec.Version)
	}
	slog.Info("job completed", attrs...)
	return ev, nil
}

func (d *Dispatcher) abort(ctx context.Context, job *model.Job, out model.Aborted) error {
	fin := model.Finish{
		JobID:  job.ID,
		State:  model.JobAborted,
		Reason: out.Reason,
		At:     d.now(),
	}
	if _, err := d.store.FinishJob(ctx, job.Key, fin); err != nil {
		return err
	}
	d.observe(job, fin, "aborted")
	slog.Warn("job aborted", "key", job.Key.String(), "reason", out.Reason, "kind", out.Kind)

	// Keep the domain error visible to errors.Is when the cluster named one.
	if cause := model.ErrorForKind(out.Kind); cause != nil && cause != model.ErrAbortedComputation {
		return fmt.Errorf("%w: %w: %s", model.ErrAbortedComputation, cause, out.Reason)
	}
	return fmt.Errorf("%w: %s", model.ErrAbortedComputation, out.Reason)
}

func (d *Dispatcher) observe(job *model.Job, fin model.Finish, outcome string) {
	metrics.CallbacksTotal.WithLabelValues(string(job.Key.Circuit), outcome).Inc()
	metrics.JobDuration.WithLabelValues(string(job.Key.Circuit)).Observe(fin.At.Sub(job.CreatedAt).Seconds())
}

// publish hands ev to the sink. The job is already committed, so a sink
// failure is logged and not returned.
func (d *Dispatcher) publish(ctx context.Context, ev *model.Event) {
	if d.sink == nil {
		return
	}
	if err := d.sink.Publish(ctx, *ev); err != nil {
		slog.Error("failed to publish event", "event_id", ev.ID, "kind", ev.Kind, "err", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
}
