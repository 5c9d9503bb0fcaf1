package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-refunds/app/entity"
	"github.com/vibast-solutions/ms-go-refunds/app/factory"
	"github.com/vibast-solutions/ms-go-refunds/app/service"
	"github.com/vibast-solutions/ms-go-refunds/app/types"
)

type WebhookController struct {
	webhookService *service.WebhookService
	logger         logrus.FieldLogger
}

func NewWebhookController(webhookService *service.WebhookService) *WebhookController {
	return &WebhookController{
		webhookService: webhookService,
		logger:         factory.NewModuleLogger("webhooks-controller"),
	}
}

// HandleRefundWebhook answers 200 for every authentic webhook it has taken
// responsibility for, including ones that did not concern a refund.
func (c *WebhookController) HandleRefundWebhook(ctx echo.Context) error {
	req, err := types.NewHandleRefundWebhookRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	result, err := c.webhookService.HandleRefundWebhook(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSignatureInvalid):
			return writeError(ctx, http.StatusUnauthorized, "Invalid signature")
		case errors.Is(err, service.ErrMalformedWebhook):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrProviderUnsupported):
			return writeError(ctx, http.StatusNotFound, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Handle refund webhook failed")
			return writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	resp := &types.WebhookResponse{Message: "Webhook processed", Status: "processed"}
	switch result.DeliveryStatus {
	case entity.WebhookDeliveryIgnored:
		resp = &types.WebhookResponse{Message: "Webhook ignored", Status: "ignored"}
	case entity.WebhookDeliveryQueued:
		resp = &types.WebhookResponse{Message: "Webhook queued", Status: "queued"}
	}

	return ctx.JSON(http.StatusOK, resp)
}
