package store

import (
	"fmt"
	"time"

	"github.com/sentinel/mpc-engine/internal/model"
)

func now() time.Time { return time.Now().UTC() }

// checkFinish validates a terminal transition against the stored job.
func checkFinish(job *model.Job, found bool, key model.JobKey, fin model.Finish) error {
	if !fin.State.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal state", model.ErrInvalidArguments, fin.State)
	}
	if !found {
		return fmt.Errorf("%w: %s", model.ErrJobNotFound, key)
	}
	if job.State.Terminal() {
		return fmt.Errorf("%w: job %s is already %s", model.ErrDuplicateCallback, key, job.State)
	}
	if job.ID != fin.JobID {
		return fmt.Errorf("%w: job %s has id %s, not %s", model.ErrUnauthorizedCallback, key, job.ID, fin.JobID)
	}
	if fin.State == model.JobAborted && fin.Write != nil {
		return fmt.Errorf("%w: aborted job %s cannot write a record", model.ErrInvalidArguments, key)
	}
	return nil
}

func applyFinish(job *model.Job, fin model.Finish) {
	at := fin.At
	job.State = fin.State
	job.Reason = fin.Reason
	job.UpdatedAt = at
	job.CompletedAt = &at
}
