package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/smsmaster/sms-engine/internal/ratelimit"
	"github.com/smsmaster/sms-engine/internal/service"
)

type ProviderService interface {
	ProviderStatuses(ctx context.Context) ([]service.ProviderStatus, error)
}

type ProviderHandler struct {
	service ProviderService
}

func NewProviderHandler(service ProviderService) (*ProviderHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("provider service is required")
	}
	return &ProviderHandler{service: service}, nil
}

func RegisterProviderRoutes(router fiber.Router, service ProviderService) error {
	h, err := NewProviderHandler(service)
	if err != nil {
		return err
	}

	router.Group("/v1").Get("/providers", h.ListProviders)
	return nil
}

type providerStatusResponse struct {
	Name      string `json:"name"`
	Usable    bool   `json:"usable"`
	Remaining *int64 `json:"remaining,omitempty"`
}

func (h *ProviderHandler) ListProviders(c *fiber.Ctx) error {
	statuses, err := h.service.ProviderStatuses(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]providerStatusResponse, 0, len(statuses))
	for _, status := range statuses {
		item := providerStatusResponse{
			Name:   status.Name,
			Usable: status.Usable,
		}
		// Providers without a configured quota report no remaining count.
		if status.Remaining != ratelimit.Unlimited {
			remaining := status.Remaining
			item.Remaining = &remaining
		}
		responses = append(responses, item)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"providers": responses,
	})
}
