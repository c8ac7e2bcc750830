package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sentinel/mpc-engine/internal/model"
)

// Envelope is the body posted to a remote cluster.
type Envelope struct {
	Job         model.Job `json:"job"`
	Token       string    `json:"token"`
	CallbackURL string    `json:"callback_url"`
}

// Remote hands jobs to an external cluster over HTTP. The cluster reports
// each outcome later through the callback endpoint.
type Remote struct {
	url        string
	publicBase string
	client     *http.Client
	retries    uint64
	budget     time.Duration
}

// NewRemote creates a client for the cluster at url. publicBase is this
// server's externally reachable base URL, used to build callback URLs.
// timeout bounds a whole Queue call, retries included, so it must stay below
// the server's write timeout.
func NewRemote(url, publicBase string, timeout time.Duration) *Remote {
	return &Remote{
		url:        url,
		publicBase: strings.TrimRight(publicBase, "/"),
		client:     &http.Client{Timeout: timeout},
		retries:    3,
		budget:     timeout,
	}
}

// Queue posts the job envelope. Transport errors and 5xx responses are
// retried with exponential backoff until the budget runs out; any other
// rejection is final.
func (r *Remote) Queue(ctx context.Context, job model.QueuedJob) error {
	body, err := json.Marshal(Envelope{
		Job:         job.Job,
		Token:       job.Token,
		CallbackURL: r.callbackURL(job.Job.Key),
	})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	attempt := 0
	post := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			slog.Warn("remote cluster unreachable", "attempt", attempt, "err", err)
			return err
		}
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		switch {
		case resp.StatusCode/100 == 2:
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("remote cluster: %s: %s", resp.Status, bytes.TrimSpace(msg))
		default:
			return backoff.Permanent(fmt.Errorf("remote cluster rejected job: %s: %s", resp.Status, bytes.TrimSpace(msg)))
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = r.budget
	b := backoff.WithContext(backoff.WithMaxRetries(eb, r.retries), ctx)
	if err := backoff.Retry(post, b); err != nil {
		return fmt.Errorf("remote cluster after %d attempts: %w", attempt, err)
	}
	slog.Info("job sent to remote cluster", "key", job.Job.Key.String(), "attempts", attempt)
	return nil
}

func (r *Remote) callbackURL(key model.JobKey) string {
	return r.publicBase + "/api/v1/callbacks/" + string(key.Circuit) + "/" + strconv.FormatUint(key.CorrelationID, 10)
}
