package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
)

func newTextbeltTestProvider(t *testing.T, endpoint string) *TextbeltProvider {
	t.Helper()

	p, err := NewTextbeltProviderWithClient("test-key", endpoint, resty.New())
	if err != nil {
		t.Fatalf("NewTextbeltProviderWithClient() error = %v", err)
	}
	return p
}

func TestTextbeltProviderSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody textbeltRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"textId":12345,"quotaRemaining":249}`))
	}))
	defer server.Close()

	p := newTextbeltTestProvider(t, server.URL)

	outcome, err := p.Send(context.Background(), "+15551234567", "hello")
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if outcome.MessageID != "12345" {
		t.Fatalf("MessageID = %q, want 12345", outcome.MessageID)
	}
	if gotBody.Phone != "+15551234567" {
		t.Fatalf("request.phone = %q, want +15551234567", gotBody.Phone)
	}
	if gotBody.Message != "hello" {
		t.Fatalf("request.message = %q, want hello", gotBody.Message)
	}
	if gotBody.Key != "test-key" {
		t.Fatalf("request.key = %q, want test-key", gotBody.Key)
	}
}

func TestTextbeltProviderSendClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		statusCode int
		body       string
		wantKind   ErrorKind
	}{
		{
			name:       "out of quota",
			statusCode: http.StatusOK,
			body:       `{"success":false,"quotaRemaining":0,"error":"Out of quota"}`,
			wantKind:   KindQuotaExceeded,
		},
		{
			name:       "invalid phone number",
			statusCode: http.StatusOK,
			body:       `{"success":false,"error":"Invalid phone number"}`,
			wantKind:   KindInvalidRecipient,
		},
		{
			name:       "invalid api key",
			statusCode: http.StatusOK,
			body:       `{"success":false,"error":"Invalid API key"}`,
			wantKind:   KindFatal,
		},
		{
			name:       "server error is transient",
			statusCode: http.StatusInternalServerError,
			body:       `oops`,
			wantKind:   KindTransient,
		},
		{
			name:       "unclassified failure is transient",
			statusCode: http.StatusOK,
			body:       `{"success":false,"error":"Unexpected condition"}`,
			wantKind:   KindTransient,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			p := newTextbeltTestProvider(t, server.URL)

			_, err := p.Send(context.Background(), "+15551234567", "hello")
			if err == nil {
				t.Fatal("Send() should fail")
			}

			var providerErr *Error
			if !errors.As(err, &providerErr) {
				t.Fatalf("error = %v, want *provider.Error", err)
			}
			if providerErr.Kind != tc.wantKind {
				t.Fatalf("Kind = %s, want %s", providerErr.Kind, tc.wantKind)
			}
		})
	}
}

func TestNewTextbeltProviderRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewTextbeltProvider(""); err == nil {
		t.Fatal("NewTextbeltProvider() should fail on missing api key")
	}
}
