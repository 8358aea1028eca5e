package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-accounts/internal/jobs"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEnqueuer struct {
	payloads []SendEmailPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueSendEmail(_ context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{Queue: QueueDefault, Type: TaskTypeSendEmail}, nil
}

func TestResetMailerQueuesLink(t *testing.T) {
	enq := &fakeEnqueuer{}
	mailer := NewResetMailer(enq, "https://accounts.example.com/", "no-reply@example.com")

	require.NoError(t, mailer.SendResetInstructions(context.Background(), "em@i.l", "a+b/c"))
	require.Len(t, enq.payloads, 1)

	got := enq.payloads[0]
	assert.Equal(t, MailKindPasswordReset, got.Kind)
	assert.Equal(t, "em@i.l", got.To)
	assert.Equal(t, "no-reply@example.com", got.From)
	assert.Equal(t, "Reset password instructions", got.Subject)

	link := mailer.ResetLink("a+b/c")
	assert.Contains(t, got.Body, link)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/password/edit", u.Path)
	assert.Equal(t, "a+b/c", u.Query().Get("reset_password_token"))
}

func TestResetMailerWrapsEnqueueError(t *testing.T) {
	boom := errors.New("redis down")
	mailer := NewResetMailer(&fakeEnqueuer{err: boom}, "http://localhost", "x@y.z")

	err := mailer.SendResetInstructions(context.Background(), "em@i.l", "tok")
	assert.ErrorIs(t, err, boom)
}

func TestNewSendEmailTaskRequiresRecipient(t *testing.T) {
	_, err := NewSendEmailTask(SendEmailPayload{Subject: "hi"})
	assert.Error(t, err)

	task, err := NewSendEmailTask(SendEmailPayload{To: "em@i.l", Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeSendEmail, task.Type())
}

func TestMailJobHandle(t *testing.T) {
	job := NewMailJob(discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewSendEmailTask(SendEmailPayload{To: "em@i.l", Subject: "hi", Kind: MailKindPasswordReset})
	require.NoError(t, err)
	assert.NoError(t, job.Handle(context.Background(), task))

	bad := asynq.NewTask(TaskTypeSendEmail, []byte("{"))
	assert.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	body, _ := json.Marshal(SendEmailPayload{Subject: "no recipient"})
	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, body)), asynq.SkipRetry)
}

type fakePurger struct {
	removed int64
	err     error
	calls   int
	before  time.Time
}

func (f *fakePurger) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	f.calls++
	f.before = now
	return f.removed, f.err
}

func TestSessionPurgeJob(t *testing.T) {
	purger := &fakePurger{removed: 4}
	job := NewSessionPurgeJob(purger, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job.clock = func() time.Time { return fixed }

	task, err := NewSessionsPurgeTask()
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, fixed, purger.before)

	dry, _ := json.Marshal(SessionsPurgePayload{DryRun: true})
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskSessionsPurge, dry)))
	assert.Equal(t, 1, purger.calls)

	purger.err = errors.New("db gone")
	assert.EqualError(t, job.Handle(context.Background(), task), "db gone")
}

func TestSessionPurgeJobNotConfigured(t *testing.T) {
	var job *SessionPurgeJob
	task, err := NewSessionsPurgeTask()
	require.NoError(t, err)
	assert.Error(t, job.Handle(context.Background(), task))
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func serveHealth(t *testing.T, h *Handler) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rr
}

func TestHealthReportsQueueDepth(t *testing.T) {
	rr := serveHealth(t, NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, discardLogger()))

	assert.Equal(t, http.StatusOK, rr.Code)
	var got queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 3, Retry: 1}, got)
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := serveHealth(t, NewHandler(nil, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `"queue":"default"`))
}

func TestHealthInspectorFailure(t *testing.T) {
	rr := serveHealth(t, NewHandler(fakeInspector{err: errors.New("no redis")}, discardLogger()))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNewWorkerRequiresRedis(t *testing.T) {
	_, err := NewWorker(WorkerConfig{})
	assert.Error(t, err)
}
