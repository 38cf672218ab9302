package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/smsmaster/sms-engine/internal/domain"
	"github.com/smsmaster/sms-engine/internal/repository"
)

type ScheduleService interface {
	SubmitScheduled(ctx context.Context, job *domain.ScheduledJob) (*domain.ScheduledJob, error)
	GetJob(ctx context.Context, id string) (*domain.ScheduledJob, error)
	ListJobs(ctx context.Context, params repository.JobListParams) ([]domain.ScheduledJob, int64, error)
	CancelScheduled(ctx context.Context, id string) error
}

type ScheduleHandler struct {
	service ScheduleService
}

func NewScheduleHandler(service ScheduleService) (*ScheduleHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("schedule service is required")
	}
	return &ScheduleHandler{service: service}, nil
}

func RegisterScheduleRoutes(router fiber.Router, service ScheduleService) error {
	h, err := NewScheduleHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/schedules", h.SubmitSchedule)
	v1.Get("/schedules/:id", h.GetSchedule)
	v1.Post("/schedules/:id/cancel", h.CancelSchedule)
	v1.Get("/schedules", h.ListSchedules)

	return nil
}

type recurrenceRequest struct {
	Kind     string `json:"kind"`
	Interval int    `json:"interval"`
}

type submitScheduleRequest struct {
	Recipient    string             `json:"recipient"`
	Body         string             `json:"body"`
	ProviderHint string             `json:"providerHint"`
	DueAt        time.Time          `json:"dueAt"`
	Recurrence   *recurrenceRequest `json:"recurrence,omitempty"`
}

type recurrenceResponse struct {
	Kind     string `json:"kind"`
	Interval int    `json:"interval,omitempty"`
}

type scheduleResponse struct {
	ID           string             `json:"id"`
	Recipient    string             `json:"recipient"`
	Body         string             `json:"body"`
	ProviderHint string             `json:"providerHint,omitempty"`
	DueAt        time.Time          `json:"dueAt"`
	Recurrence   recurrenceResponse `json:"recurrence"`
	Status       string             `json:"status"`
	MessageID    *string            `json:"messageId,omitempty"`
	CreatedAt    time.Time          `json:"createdAt,omitempty"`
	UpdatedAt    time.Time          `json:"updatedAt,omitempty"`
}

type listSchedulesResponse struct {
	Data []scheduleResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

func (h *ScheduleHandler) SubmitSchedule(c *fiber.Ctx) error {
	var req submitScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	job := domain.ScheduledJob{
		Recipient:    strings.TrimSpace(req.Recipient),
		Body:         req.Body,
		ProviderHint: strings.TrimSpace(req.ProviderHint),
		DueAt:        req.DueAt,
	}
	if req.Recurrence != nil {
		kind, err := domain.ParseRecurrenceKindFromString(req.Recurrence.Kind)
		if err != nil {
			return toHTTPError(err)
		}
		job.Recurrence = domain.Recurrence{Kind: kind, Interval: req.Recurrence.Interval}
	}

	created, err := h.service.SubmitScheduled(c.Context(), &job)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toScheduleResponse(created))
}

func (h *ScheduleHandler) GetSchedule(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	job, err := h.service.GetJob(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toScheduleResponse(job))
}

func (h *ScheduleHandler) CancelSchedule(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.CancelScheduled(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"jobId":  id,
		"status": domain.JobStatusCancelled.String(),
	})
}

func (h *ScheduleHandler) ListSchedules(c *fiber.Ctx) error {
	params := repository.JobListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return toHTTPError(fmt.Errorf("%w: page must be >= 1", domain.ErrValidation))
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return toHTTPError(fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize))
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseJobStatusFromString(rawStatus)
		if err != nil {
			return toHTTPError(err)
		}
		params.Status = &status
	}

	jobs, total, err := h.service.ListJobs(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]scheduleResponse, 0, len(jobs))
	for _, job := range jobs {
		j := job
		responses = append(responses, toScheduleResponse(&j))
	}

	return c.Status(fiber.StatusOK).JSON(listSchedulesResponse{
		Data: responses,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func toScheduleResponse(j *domain.ScheduledJob) scheduleResponse {
	if j == nil {
		return scheduleResponse{}
	}

	return scheduleResponse{
		ID:           j.ID,
		Recipient:    j.Recipient,
		Body:         j.Body,
		ProviderHint: j.ProviderHint,
		DueAt:        j.DueAt,
		Recurrence: recurrenceResponse{
			Kind:     j.Recurrence.Kind.String(),
			Interval: j.Recurrence.Interval,
		},
		Status:    j.Status.String(),
		MessageID: j.MessageID,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
