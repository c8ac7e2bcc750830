package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sentinel/mpc-engine/internal/model"
)

// MemoryStore implements Store with concurrent in-memory maps. Used for
// testing and development. Not suitable for production (no persistence).
type MemoryStore struct {
	jobs    *xsync.Map[model.JobKey, *model.Job]
	records *xsync.Map[model.RecordRef, *model.Record]
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    xsync.NewMap[model.JobKey, *model.Job](),
		records: xsync.NewMap[model.RecordRef, *model.Record](),
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, job *model.Job) error {
	// Store a copy to avoid external mutation.
	_, loaded := s.jobs.LoadOrStore(job.Key, job.Clone())
	if loaded {
		return fmt.Errorf("%w: %s", model.ErrDuplicateComputation, job.Key)
	}
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, key model.JobKey) (*model.Job, error) {
	j, ok := s.jobs.Load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrJobNotFound, key)
	}
	return j.Clone(), nil
}

func (s *MemoryStore) ListJobs(_ context.Context, state model.JobState) ([]model.Job, error) {
	var jobs []model.Job
	s.jobs.Range(func(_ model.JobKey, j *model.Job) bool {
		if state == "" || j.State == state {
			jobs = append(jobs, *j.Clone())
		}
		return true
	})
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.Before(jobs[b].CreatedAt) })
	return jobs, nil
}

func (s *MemoryStore) MarkExecuting(_ context.Context, key model.JobKey) error {
	var err error
	s.jobs.Compute(key, func(old *model.Job, loaded bool) (*model.Job, xsync.ComputeOp) {
		switch {
		case !loaded:
			err = fmt.Errorf("%w: %s", model.ErrJobNotFound, key)
			return old, xsync.CancelOp
		case old.State.Terminal():
			err = fmt.Errorf("%w: job %s is already %s", model.ErrDuplicateCallback, key, old.State)
			return old, xsync.CancelOp
		case old.State == model.JobExecuting:
			return old, xsync.CancelOp
		}
		next := old.Clone()
		next.State = model.JobExecuting
		next.UpdatedAt = now()
		return next, xsync.UpdateOp
	})
	return err
}

func (s *MemoryStore) FinishJob(_ context.Context, key model.JobKey, fin model.Finish) (*model.Record, error) {
	var (
		rec *model.Record
		err error
	)
	// The record write happens inside the job's compute, so a second
	// FinishJob for the same key observes the terminal state.
	s.jobs.Compute(key, func(old *model.Job, loaded bool) (*model.Job, xsync.ComputeOp) {
		if err = checkFinish(old, loaded, key, fin); err != nil {
			return old, xsync.CancelOp
		}
		if fin.Write != nil {
			rec = s.writeRecord(fin.Write, fin.At)
		}
		next := old.Clone()
		applyFinish(next, fin)
		return next, xsync.UpdateOp
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *MemoryStore) writeRecord(w *model.RecordWrite, at time.Time) *model.Record {
	rec, _ := s.records.Compute(w.Ref, func(old *model.Record, loaded bool) (*model.Record, xsync.ComputeOp) {
		next := &model.Record{
			Kind:       w.Ref.Kind,
			ID:         w.Ref.ID,
			Ciphertext: append([]byte(nil), w.Ciphertext...),
			Version:    1,
			UpdatedAt:  at,
		}
		if loaded {
			next.Version = old.Version + 1
		}
		return next, xsync.UpdateOp
	})
	out := *rec
	return &out
}

func (s *MemoryStore) GetRecord(_ context.Context, ref model.RecordRef) (*model.Record, error) {
	r, ok := s.records.Load(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrRecordNotFound, ref)
	}
	out := *r
	out.Ciphertext = append([]byte(nil), r.Ciphertext...)
	return &out, nil
}
