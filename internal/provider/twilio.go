package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	twilioName           = "twilio"
	twilioBaseURL        = "https://api.twilio.com"
	defaultTwilioTimeout = 10 * time.Second
)

// Twilio error codes that mean the recipient itself is unusable.
var twilioInvalidRecipientCodes = map[int]bool{
	21211: true, // invalid 'To' phone number
	21408: true, // permission to send to this region not enabled
	21610: true, // recipient has unsubscribed
	21614: true, // 'To' number is not a valid mobile number
}

type twilioResponse struct {
	Sid          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	Code         int    `json:"code"`
	Message      string `json:"message"`
	ErrorMessage string `json:"error_message"`
}

// TwilioProvider delivers SMS through the Twilio Messages API.
type TwilioProvider struct {
	client     *resty.Client
	accountSID string
	fromNumber string
}

func NewTwilioProvider(accountSID, authToken, fromNumber string) (*TwilioProvider, error) {
	client := resty.New()
	client.SetBaseURL(twilioBaseURL)
	client.SetTimeout(defaultTwilioTimeout)
	client.SetRetryCount(0)

	return NewTwilioProviderWithClient(accountSID, authToken, fromNumber, client)
}

func NewTwilioProviderWithClient(accountSID, authToken, fromNumber string, client *resty.Client) (*TwilioProvider, error) {
	accountSID = strings.TrimSpace(accountSID)
	authToken = strings.TrimSpace(authToken)
	fromNumber = strings.TrimSpace(fromNumber)

	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("twilio account sid and auth token are required")
	}
	if fromNumber == "" {
		return nil, fmt.Errorf("twilio from number is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTwilioTimeout)
	}
	client.SetRetryCount(0)
	client.SetBasicAuth(accountSID, authToken)

	return &TwilioProvider{
		client:     client,
		accountSID: accountSID,
		fromNumber: fromNumber,
	}, nil
}

func (p *TwilioProvider) Name() string { return twilioName }

func (p *TwilioProvider) Send(ctx context.Context, recipient, body string) (*DeliveryOutcome, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	var parsed twilioResponse
	endpoint := fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", url.PathEscape(p.accountSID))

	response, err := p.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   recipient,
			"From": p.fromNumber,
			"Body": body,
		}).
		SetResult(&parsed).
		SetError(&parsed).
		Post(endpoint)
	if err != nil {
		return nil, &Error{
			Kind:    KindTransient,
			Message: "twilio request failed",
			Cause:   err,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &DeliveryOutcome{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  parsed.Sid,
		}, nil
	}

	return nil, &Error{
		Kind:       classifyTwilioFailure(statusCode, &parsed),
		StatusCode: statusCode,
		Message:    twilioErrorMessage(statusCode, &parsed),
	}
}

func classifyTwilioFailure(statusCode int, parsed *twilioResponse) ErrorKind {
	errorCode := 0
	if parsed != nil {
		errorCode = parsed.Code
		if parsed.ErrorCode != nil {
			errorCode = *parsed.ErrorCode
		}
	}

	switch {
	case statusCode >= http.StatusInternalServerError:
		return KindTransient
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return KindFatal
	case statusCode == http.StatusPaymentRequired || statusCode == http.StatusTooManyRequests:
		return KindQuotaExceeded
	case twilioInvalidRecipientCodes[errorCode]:
		return KindInvalidRecipient
	default:
		// Remaining 4xx are request/config problems this adapter cannot fix.
		return KindFatal
	}
}

func twilioErrorMessage(statusCode int, parsed *twilioResponse) string {
	base := fmt.Sprintf("twilio returned status %d", statusCode)
	if parsed == nil {
		return base
	}

	detail := strings.TrimSpace(parsed.Message)
	if detail == "" {
		detail = strings.TrimSpace(parsed.ErrorMessage)
	}
	if detail == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, detail)
}
