package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/smsmaster/sms-engine/internal/domain"
	"github.com/smsmaster/sms-engine/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type MessageService interface {
	SubmitImmediate(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	ListMessages(ctx context.Context, params repository.MessageListParams) ([]domain.Message, int64, error)
	GetAttempts(ctx context.Context, messageID string) ([]domain.DeliveryAttempt, error)
}

type MessageHandler struct {
	service MessageService
}

func NewMessageHandler(service MessageService) (*MessageHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("message service is required")
	}
	return &MessageHandler{service: service}, nil
}

func RegisterMessageRoutes(router fiber.Router, service MessageService) error {
	h, err := NewMessageHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/messages", h.SubmitMessage)
	v1.Get("/messages/:id", h.GetMessage)
	v1.Get("/messages/:id/attempts", h.GetAttempts)
	v1.Get("/messages", h.ListMessages)

	return nil
}

type submitMessageRequest struct {
	CorrelationID string `json:"correlationId"`
	Recipient     string `json:"recipient"`
	Body          string `json:"body"`
	ProviderHint  string `json:"providerHint"`
}

type messageResponse struct {
	ID                string    `json:"id"`
	CorrelationID     string    `json:"correlationId"`
	JobID             *string   `json:"jobId,omitempty"`
	Recipient         string    `json:"recipient"`
	Body              string    `json:"body"`
	ProviderHint      string    `json:"providerHint,omitempty"`
	Status            string    `json:"status"`
	Provider          *string   `json:"provider,omitempty"`
	ProviderMessageID *string   `json:"providerMessageId,omitempty"`
	FailureKind       *string   `json:"failureKind,omitempty"`
	AttemptCount      int       `json:"attemptCount"`
	CreatedAt         time.Time `json:"createdAt,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
}

type attemptResponse struct {
	Provider      string    `json:"provider"`
	AttemptNumber int       `json:"attemptNumber"`
	Outcome       string    `json:"outcome"`
	StatusCode    *int      `json:"statusCode,omitempty"`
	ResponseBody  *string   `json:"responseBody,omitempty"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type listMessagesResponse struct {
	Data []messageResponse `json:"data"`
	Meta listMeta          `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *MessageHandler) SubmitMessage(c *fiber.Ctx) error {
	var req submitMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	msg := domain.Message{
		CorrelationID: strings.TrimSpace(req.CorrelationID),
		Recipient:     strings.TrimSpace(req.Recipient),
		Body:          req.Body,
		ProviderHint:  strings.TrimSpace(req.ProviderHint),
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = requestCorrelationID(c)
	}

	created, err := h.service.SubmitImmediate(c.Context(), &msg)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toMessageResponse(created))
}

func (h *MessageHandler) GetMessage(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	msg, err := h.service.GetMessage(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toMessageResponse(msg))
}

func (h *MessageHandler) GetAttempts(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	attempts, err := h.service.GetAttempts(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, attemptResponse{
			Provider:      attempt.Provider,
			AttemptNumber: attempt.AttemptNumber,
			Outcome:       attempt.Outcome,
			StatusCode:    attempt.StatusCode,
			ResponseBody:  attempt.ResponseBody,
			Error:         attempt.Error,
			CreatedAt:     attempt.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"messageId": id,
		"attempts":  responses,
	})
}

func (h *MessageHandler) ListMessages(c *fiber.Ctx) error {
	params, err := parseMessageListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	messages, total, err := h.service.ListMessages(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listMessagesResponse{
		Data: toMessageResponses(messages),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseMessageListParams(c *fiber.Ctx) (repository.MessageListParams, error) {
	params := repository.MessageListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.MessageListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.MessageListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.MessageListParams{}, err
		}
		params.Status = &status
	}

	if rawProvider := strings.ToLower(strings.TrimSpace(c.Query("provider"))); rawProvider != "" {
		params.Provider = &rawProvider
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.MessageListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.MessageListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toMessageResponses(messages []domain.Message) []messageResponse {
	responses := make([]messageResponse, 0, len(messages))
	for _, msg := range messages {
		m := msg
		responses = append(responses, toMessageResponse(&m))
	}
	return responses
}

func toMessageResponse(m *domain.Message) messageResponse {
	if m == nil {
		return messageResponse{}
	}

	return messageResponse{
		ID:                m.ID,
		CorrelationID:     m.CorrelationID,
		JobID:             m.JobID,
		Recipient:         m.Recipient,
		Body:              m.Body,
		ProviderHint:      m.ProviderHint,
		Status:            m.Status.String(),
		Provider:          m.Provider,
		ProviderMessageID: m.ProviderMessageID,
		FailureKind:       m.FailureKind,
		AttemptCount:      m.AttemptCount,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
