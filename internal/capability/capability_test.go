package capability_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel/mpc-engine/internal/capability"
	"github.com/sentinel/mpc-engine/internal/model"
)

func testJob(id string, corr uint64) *model.Job {
	return &model.Job{ID: id, Key: model.JobKey{Circuit: "update_health_factor", CorrelationID: corr}}
}

func TestIssueVerify(t *testing.T) {
	iss := capability.NewIssuer([]byte("secret"), time.Hour)
	job := testJob("job-1", 7)

	tok, err := iss.Issue(job)
	require.NoError(t, err)
	assert.NoError(t, iss.Verify(tok, job))
}

func TestVerify_Rejects(t *testing.T) {
	iss := capability.NewIssuer([]byte("secret"), time.Hour)
	job := testJob("job-1", 7)
	tok, err := iss.Issue(job)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		job   *model.Job
		iss   *capability.Issuer
	}{
		{"other correlation id", tok, testJob("job-1", 8), iss},
		{"other job id", tok, testJob("job-2", 7), iss},
		{"other circuit", tok, &model.Job{ID: "job-1", Key: model.JobKey{Circuit: "prove_threshold", CorrelationID: 7}}, iss},
		{"other secret", tok, job, capability.NewIssuer([]byte("other"), time.Hour)},
		{"garbage", "not-a-token", job, iss},
		{"expired", tok, job, capability.NewIssuer([]byte("secret"), time.Hour).WithClock(func() time.Time {
			return time.Now().Add(2 * time.Hour)
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.iss.Verify(tt.token, tt.job)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrUnauthorizedCallback))
		})
	}
}
