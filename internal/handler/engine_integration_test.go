package handler

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/smsmaster/sms-engine/internal/domain"
	"github.com/smsmaster/sms-engine/internal/ratelimit"
	"github.com/smsmaster/sms-engine/internal/repository"
	"github.com/smsmaster/sms-engine/internal/service"
	"github.com/smsmaster/sms-engine/internal/transport"
	"go.uber.org/zap"
)

func TestSubmitMessageRoute(t *testing.T) {
	t.Parallel()

	svc := &stubMessageService{
		submitFn: func(ctx context.Context, m *domain.Message) (*domain.Message, error) {
			m.ID = "msg-created"
			m.Status = domain.StatusPending
			if strings.TrimSpace(m.CorrelationID) == "" {
				m.CorrelationID = "corr-generated"
			}
			if err := m.Validate(); err != nil {
				return nil, err
			}
			return m, nil
		},
	}
	app := newMessageTestApp(t, svc)

	validBody := `{"recipient":"+15551112233","body":"hello","providerHint":"twilio"}`
	resp, body := performRequest(t, app, http.MethodPost, "/v1/messages", validBody)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(body))
	}
	var accepted map[string]any
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if accepted["id"] != "msg-created" {
		t.Fatalf("id = %v, want msg-created", accepted["id"])
	}
	if accepted["status"] != domain.StatusPending.String() {
		t.Fatalf("status = %v, want %s", accepted["status"], domain.StatusPending)
	}

	missingRecipient := `{"recipient":"","body":"hello"}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/messages", missingRecipient)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing recipient", resp.StatusCode)
	}

	tooLong := fmt.Sprintf(`{"recipient":"+15551112233","body":"%s"}`, strings.Repeat("a", domain.MaxMessageContent+1))
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/messages", tooLong)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for body overflow", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/messages", "{not-json")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed json", resp.StatusCode)
	}
}

func TestGetMessageRoute(t *testing.T) {
	t.Parallel()

	providerName := "twilio"
	svc := &stubMessageService{
		getFn: func(ctx context.Context, id string) (*domain.Message, error) {
			if id != "msg-1" {
				return nil, domain.ErrNotFound
			}
			return &domain.Message{
				ID:        "msg-1",
				Recipient: "+15551112233",
				Body:      "hello",
				Status:    domain.StatusSent,
				Provider:  &providerName,
			}, nil
		},
	}
	app := newMessageTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/messages/msg-1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["provider"] != "twilio" {
		t.Fatalf("provider = %v, want twilio", parsed["provider"])
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/messages/missing", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetAttemptsRoute(t *testing.T) {
	t.Parallel()

	code := 503
	svc := &stubMessageService{
		attemptsFn: func(ctx context.Context, messageID string) ([]domain.DeliveryAttempt, error) {
			return []domain.DeliveryAttempt{
				{MessageID: messageID, Provider: "twilio", AttemptNumber: 1, Outcome: domain.AttemptOutcomeTransient, StatusCode: &code},
				{MessageID: messageID, Provider: "textbelt", AttemptNumber: 2, Outcome: domain.AttemptOutcomeSent},
			}, nil
		},
	}
	app := newMessageTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/messages/msg-1/attempts", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var parsed struct {
		MessageID string            `json:"messageId"`
		Attempts  []attemptResponse `json:"attempts"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.MessageID != "msg-1" || len(parsed.Attempts) != 2 {
		t.Fatalf("parsed = %+v, want two attempts for msg-1", parsed)
	}
	if parsed.Attempts[0].StatusCode == nil || *parsed.Attempts[0].StatusCode != 503 {
		t.Fatalf("first attempt statusCode = %v, want 503", parsed.Attempts[0].StatusCode)
	}
}

func TestListMessagesRoute(t *testing.T) {
	t.Parallel()

	var captured repository.MessageListParams
	svc := &stubMessageService{
		listFn: func(ctx context.Context, params repository.MessageListParams) ([]domain.Message, int64, error) {
			captured = params
			return []domain.Message{{ID: "msg-1", Recipient: "+15551112233", Body: "x", Status: domain.StatusFailed}}, 1, nil
		},
	}
	app := newMessageTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet,
		"/v1/messages?status=failed&provider=Twilio&from=2026-01-01T00:00:00Z&page=2&pageSize=10", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	if captured.Status == nil || *captured.Status != domain.StatusFailed {
		t.Fatalf("status filter = %v, want FAILED", captured.Status)
	}
	if captured.Provider == nil || *captured.Provider != "twilio" {
		t.Fatalf("provider filter = %v, want normalized twilio", captured.Provider)
	}
	if captured.From == nil || captured.Page != 2 || captured.PageSize != 10 {
		t.Fatalf("params = %+v, want from set, page 2, pageSize 10", captured)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/messages?status=bogus", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown status", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/messages?pageSize=1000", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for oversized page", resp.StatusCode)
	}
}

func TestSubmitScheduleRoute(t *testing.T) {
	t.Parallel()

	svc := &stubScheduleService{
		submitFn: func(ctx context.Context, j *domain.ScheduledJob) (*domain.ScheduledJob, error) {
			j.ID = "job-created"
			j.Status = domain.JobStatusScheduled
			return j, nil
		},
	}
	app := newScheduleTestApp(t, svc)

	validBody := `{"recipient":"+15551112233","body":"reminder","dueAt":"2026-09-01T10:00:00Z","recurrence":{"kind":"weekly","interval":2}}`
	resp, body := performRequest(t, app, http.MethodPost, "/v1/schedules", validBody)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(body))
	}
	var parsed scheduleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.ID != "job-created" {
		t.Fatalf("id = %s, want job-created", parsed.ID)
	}
	if parsed.Recurrence.Kind != domain.RecurrenceWeekly.String() || parsed.Recurrence.Interval != 2 {
		t.Fatalf("recurrence = %+v, want weekly every 2", parsed.Recurrence)
	}

	badKind := `{"recipient":"+15551112233","body":"reminder","dueAt":"2026-09-01T10:00:00Z","recurrence":{"kind":"fortnightly"}}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/schedules", badKind)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown recurrence kind", resp.StatusCode)
	}

	badDue := `{"recipient":"+15551112233","body":"reminder","dueAt":"not-a-time"}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/schedules", badDue)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid dueAt", resp.StatusCode)
	}
}

func TestCancelScheduleRoute(t *testing.T) {
	t.Parallel()

	svc := &stubScheduleService{
		cancelFn: func(ctx context.Context, id string) error {
			if id == "job-firing" {
				return fmt.Errorf("%w: job already firing", domain.ErrConflict)
			}
			return nil
		},
	}
	app := newScheduleTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/schedules/job-1/cancel", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["status"] != domain.JobStatusCancelled.String() {
		t.Fatalf("status = %v, want %s", parsed["status"], domain.JobStatusCancelled)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/schedules/job-firing/cancel", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 for non-cancellable job", resp.StatusCode)
	}
}

func TestListProvidersRoute(t *testing.T) {
	t.Parallel()

	svc := &stubProviderService{
		statusesFn: func(ctx context.Context) ([]service.ProviderStatus, error) {
			return []service.ProviderStatus{
				{Name: "textbelt", Usable: false, Remaining: ratelimit.Unlimited},
				{Name: "twilio", Usable: true, Remaining: 42},
			}, nil
		},
	}

	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	if err := RegisterProviderRoutes(app, svc); err != nil {
		t.Fatalf("RegisterProviderRoutes() error = %v", err)
	}

	resp, body := performRequest(t, app, http.MethodGet, "/v1/providers", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Providers []providerStatusResponse `json:"providers"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(parsed.Providers))
	}
	if parsed.Providers[0].Remaining != nil {
		t.Fatalf("unlimited provider remaining = %v, want omitted", parsed.Providers[0].Remaining)
	}
	if parsed.Providers[1].Remaining == nil || *parsed.Providers[1].Remaining != 42 {
		t.Fatalf("twilio remaining = %v, want 42", parsed.Providers[1].Remaining)
	}
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()

	t.Run("healthz and livez return 200", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{})
		t.Cleanup(func() { _ = sqlDB.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, sqlDB, nil)

		for _, path := range []string{"/healthz", "/livez"} {
			resp, body := performRequest(t, app, http.MethodGet, path, "")
			if resp.StatusCode != fiber.StatusOK {
				t.Fatalf("%s status = %d, want 200, body=%s", path, resp.StatusCode, string(body))
			}
		}
	})

	t.Run("readyz without redis checks postgres only", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{})
		t.Cleanup(func() { _ = sqlDB.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, sqlDB, nil)

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
		if strings.Contains(string(body), "redis") {
			t.Fatalf("body = %s, redis check should be absent", string(body))
		}
	})

	t.Run("readyz returns 503 when postgres down", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{pingErr: errors.New("postgres down")})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(nil)
		t.Cleanup(func() { _ = rdb.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, sqlDB, rdb)

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503, body=%s", resp.StatusCode, string(body))
		}
	})
}

type stubMessageService struct {
	submitFn   func(ctx context.Context, m *domain.Message) (*domain.Message, error)
	getFn      func(ctx context.Context, id string) (*domain.Message, error)
	listFn     func(ctx context.Context, params repository.MessageListParams) ([]domain.Message, int64, error)
	attemptsFn func(ctx context.Context, messageID string) ([]domain.DeliveryAttempt, error)
}

func (s *stubMessageService) SubmitImmediate(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, m)
	}
	return nil, errors.New("not implemented")
}

func (s *stubMessageService) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubMessageService) ListMessages(ctx context.Context, params repository.MessageListParams) ([]domain.Message, int64, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (s *stubMessageService) GetAttempts(ctx context.Context, messageID string) ([]domain.DeliveryAttempt, error) {
	if s.attemptsFn != nil {
		return s.attemptsFn(ctx, messageID)
	}
	return nil, domain.ErrNotFound
}

type stubScheduleService struct {
	submitFn func(ctx context.Context, j *domain.ScheduledJob) (*domain.ScheduledJob, error)
	getFn    func(ctx context.Context, id string) (*domain.ScheduledJob, error)
	listFn   func(ctx context.Context, params repository.JobListParams) ([]domain.ScheduledJob, int64, error)
	cancelFn func(ctx context.Context, id string) error
}

func (s *stubScheduleService) SubmitScheduled(ctx context.Context, j *domain.ScheduledJob) (*domain.ScheduledJob, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, j)
	}
	return nil, errors.New("not implemented")
}

func (s *stubScheduleService) GetJob(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubScheduleService) ListJobs(ctx context.Context, params repository.JobListParams) ([]domain.ScheduledJob, int64, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (s *stubScheduleService) CancelScheduled(ctx context.Context, id string) error {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, id)
	}
	return nil
}

type stubProviderService struct {
	statusesFn func(ctx context.Context) ([]service.ProviderStatus, error)
}

func (s *stubProviderService) ProviderStatuses(ctx context.Context) ([]service.ProviderStatus, error) {
	if s.statusesFn != nil {
		return s.statusesFn(ctx)
	}
	return nil, nil
}

func newMessageTestApp(t *testing.T, svc MessageService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	if err := RegisterMessageRoutes(app, svc); err != nil {
		t.Fatalf("RegisterMessageRoutes() error = %v", err)
	}
	return app
}

func newScheduleTestApp(t *testing.T, svc ScheduleService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	if err := RegisterScheduleRoutes(app, svc); err != nil {
		t.Fatalf("RegisterScheduleRoutes() error = %v", err)
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

type stubRedisHook struct {
	pingErr error
}

func (h stubRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h stubRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "ping") {
			if h.pingErr != nil {
				cmd.SetErr(h.pingErr)
				return h.pingErr
			}
		}
		cmd.SetErr(nil)
		return nil
	}
}

func (h stubRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			cmd.SetErr(nil)
		}
		return nil
	}
}

func newStubRedisClient(pingErr error) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  time.Millisecond,
		ReadTimeout:  time.Millisecond,
		WriteTimeout: time.Millisecond,
	})
	rdb.AddHook(stubRedisHook{pingErr: pingErr})
	return rdb
}
