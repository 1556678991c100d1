// Package notify delivers job status callbacks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"montage/internal/jobs"
	"montage/internal/pkg/errors"
	"montage/internal/pkg/logger"
)

const defaultAttempts = 3

// Payload is the JSON body posted to a callback URL.
type Payload struct {
	JobID     string       `json:"jobId"`
	ProjectID string       `json:"projectId,omitempty"`
	Status    jobs.State   `json:"status"`
	Progress  int          `json:"progress"`
	Result    *jobs.Result `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// PayloadFor builds the callback body for a job snapshot.
func PayloadFor(j jobs.Job) Payload {
	return Payload{
		JobID:     j.ID,
		ProjectID: j.ProjectID,
		Status:    j.State,
		Progress:  j.Progress,
		Result:    j.Result,
		Error:     j.Error,
		UpdatedAt: j.UpdatedAt,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Notifier posts callbacks with linear backoff: after failed attempt n it
// waits n units before trying again.
type Notifier struct {
	client   *http.Client
	unit     time.Duration
	attempts int
	sleep    Sleeper
	log      *logger.Logger
}

type Options struct {
	Client *http.Client
	// Timeout bounds each attempt when Client is nil.
	Timeout  time.Duration
	Unit     time.Duration
	Attempts int
	Sleep    Sleeper
	Log      *logger.Logger
}

func New(opts Options) *Notifier {
	n := &Notifier{client: opts.Client, unit: opts.Unit, attempts: opts.Attempts, sleep: opts.Sleep, log: opts.Log}
	if n.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		n.client = &http.Client{Timeout: timeout}
	}
	if n.unit <= 0 {
		n.unit = 5 * time.Second
	}
	if n.attempts <= 0 {
		n.attempts = defaultAttempts
	}
	if n.sleep == nil {
		n.sleep = sleepCtx
	}
	if n.log == nil {
		n.log = logger.NewDefault()
	}
	n.log = n.log.WithComponent("notify")
	return n
}

// Deliver posts payload to url. It returns a CALLBACK_ERROR after the last
// failed attempt; callers log it and move on.
func (n *Notifier) Deliver(ctx context.Context, url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeCallback, "notify.deliver", "encode payload")
	}
	log := n.log.FromContext(ctx).WithJobID(payload.JobID)

	var lastErr error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		lastErr = n.post(ctx, url, body)
		if lastErr == nil {
			log.Debug("callback delivered", "attempt", attempt, "status", string(payload.Status))
			return nil
		}
		if attempt == n.attempts {
			break
		}
		delay := time.Duration(attempt) * n.unit
		log.Debug("callback failed, retrying", "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", lastErr.Error())
		if err := n.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	log.Warn("callback abandoned", "url", url, "attempts", n.attempts, "error", lastErr.Error())
	return errors.WrapWithCode(lastErr, errors.CodeCallback, "notify.deliver", "callback delivery failed").
		WithField("url", url)
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("callback http %d", res.StatusCode)
	}
	return nil
}
