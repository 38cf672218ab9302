package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDispatchCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncMessageSent("Twilio")
	metrics.IncMessageFailed("twilio", "INVALID_RECIPIENT")
	metrics.IncMessageRateLimited("textbelt")
	metrics.IncRateLimited("textbelt")
	metrics.ObserveSendDuration("twilio", 120*time.Millisecond)
	metrics.IncSendRetry("twilio")
	metrics.IncWorkerInFlight()
	metrics.DecWorkerInFlight()
	metrics.IncJobFired()

	if got := testutil.ToFloat64(metrics.messagesSentTotal.WithLabelValues("twilio")); got != 1 {
		t.Fatalf("messages_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.messagesFailedTotal.WithLabelValues("twilio", "invalid_recipient")); got != 1 {
		t.Fatalf("messages_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.rateLimitedTotal.WithLabelValues("textbelt")); got != 1 {
		t.Fatalf("rate_limited_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.messagesRateLimitedTotal.WithLabelValues("textbelt")); got != 1 {
		t.Fatalf("messages_rate_limited_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.messagesFailedTotal.WithLabelValues("textbelt", "rate_limited")); got != 0 {
		t.Fatalf("messages_failed_total for rate limited settle = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.sendRetriesTotal.WithLabelValues("twilio")); got != 1 {
		t.Fatalf("send_retries_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.workerInflight); got != 0 {
		t.Fatalf("worker_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.jobsFiredTotal); got != 1 {
		t.Fatalf("jobs_fired_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncMessageSent("twilio")
	metrics.IncMessageFailed("twilio", "fatal")
	metrics.IncMessageRateLimited("twilio")
	metrics.IncRateLimited("twilio")
	metrics.ObserveSendDuration("twilio", time.Second)
	metrics.IncSendRetry("twilio")
	metrics.IncWorkerInFlight()
	metrics.DecWorkerInFlight()
	metrics.IncJobFired()

	if handler := metrics.Handler(); handler == nil {
		t.Fatal("Handler() should fall back to the default handler")
	}
}
