package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	textbeltName           = "textbelt"
	defaultTextbeltURL     = "https://textbelt.com/text"
	defaultTextbeltTimeout = 10 * time.Second
)

type textbeltRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Key     string `json:"key"`
}

type textbeltResponse struct {
	Success        bool   `json:"success"`
	TextID         any    `json:"textId"`
	QuotaRemaining int    `json:"quotaRemaining"`
	Error          string `json:"error"`
}

// TextbeltProvider delivers SMS through the Textbelt HTTP API.
type TextbeltProvider struct {
	client   *resty.Client
	endpoint string
	apiKey   string
}

func NewTextbeltProvider(apiKey string) (*TextbeltProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultTextbeltTimeout)
	client.SetRetryCount(0)

	return NewTextbeltProviderWithClient(apiKey, defaultTextbeltURL, client)
}

func NewTextbeltProviderWithClient(apiKey, endpoint string, client *resty.Client) (*TextbeltProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	endpoint = strings.TrimSpace(endpoint)

	if apiKey == "" {
		return nil, fmt.Errorf("textbelt api key is required")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("textbelt endpoint is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTextbeltTimeout)
	}
	client.SetRetryCount(0)

	return &TextbeltProvider{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
	}, nil
}

func (p *TextbeltProvider) Name() string { return textbeltName }

func (p *TextbeltProvider) Send(ctx context.Context, recipient, body string) (*DeliveryOutcome, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	var parsed textbeltResponse

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(textbeltRequest{
			Phone:   recipient,
			Message: body,
			Key:     p.apiKey,
		}).
		SetResult(&parsed).
		SetError(&parsed).
		Post(p.endpoint)
	if err != nil {
		return nil, &Error{
			Kind:    KindTransient,
			Message: "textbelt request failed",
			Cause:   err,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusInternalServerError {
		return nil, &Error{
			Kind:       KindTransient,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("textbelt returned status %d", statusCode),
		}
	}

	if parsed.Success {
		return &DeliveryOutcome{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  textbeltMessageID(parsed.TextID),
		}, nil
	}

	// Textbelt reports most failures as success=false with an error string,
	// usually alongside HTTP 200.
	return nil, &Error{
		Kind:       classifyTextbeltFailure(statusCode, parsed),
		StatusCode: statusCode,
		Message:    textbeltErrorMessage(statusCode, parsed),
	}
}

func classifyTextbeltFailure(statusCode int, parsed textbeltResponse) ErrorKind {
	reason := strings.ToLower(parsed.Error)

	switch {
	case strings.Contains(reason, "quota"):
		return KindQuotaExceeded
	case strings.Contains(reason, "phone number") || strings.Contains(reason, "invalid phone"):
		return KindInvalidRecipient
	case strings.Contains(reason, "key") || statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return KindFatal
	case statusCode == http.StatusTooManyRequests:
		return KindQuotaExceeded
	default:
		return KindTransient
	}
}

func textbeltErrorMessage(statusCode int, parsed textbeltResponse) string {
	base := fmt.Sprintf("textbelt returned status %d", statusCode)
	if reason := strings.TrimSpace(parsed.Error); reason != "" {
		return fmt.Sprintf("%s: %s", base, reason)
	}
	return base
}

// textbeltMessageID tolerates the API returning textId as number or string.
func textbeltMessageID(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
