package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-refunds/app/factory"
	"github.com/vibast-solutions/ms-go-refunds/app/mapper"
	"github.com/vibast-solutions/ms-go-refunds/app/provider"
	"github.com/vibast-solutions/ms-go-refunds/app/service"
	"github.com/vibast-solutions/ms-go-refunds/app/types"
)

type RefundController struct {
	refundService *service.RefundService
	logger        logrus.FieldLogger
}

func NewRefundController(refundService *service.RefundService) *RefundController {
	return &RefundController{
		refundService: refundService,
		logger:        factory.NewModuleLogger("refunds-controller"),
	}
}

func (c *RefundController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *RefundController) CreateFullRefund(ctx echo.Context) error {
	req, err := types.NewCreateRefundRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	item, err := c.refundService.CreateFullRefund(ctx.Request().Context(), req)
	if err != nil {
		return c.writeRefundError(ctx, err, "Create full refund failed")
	}

	return ctx.JSON(http.StatusCreated, &types.RefundEnvelopeResponse{Refund: mapper.RefundToResponse(item)})
}

func (c *RefundController) CreatePartialRefund(ctx echo.Context) error {
	req, err := types.NewCreateRefundRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	item, err := c.refundService.CreatePartialRefund(ctx.Request().Context(), req)
	if err != nil {
		return c.writeRefundError(ctx, err, "Create partial refund failed")
	}

	return ctx.JSON(http.StatusCreated, &types.RefundEnvelopeResponse{Refund: mapper.RefundToResponse(item)})
}

func (c *RefundController) GetRefund(ctx echo.Context) error {
	req, err := types.NewGetRefundRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	item, err := c.refundService.GetRefundStatus(ctx.Request().Context(), req.GetRefundId())
	if err != nil {
		if errors.Is(err, service.ErrRefundNotFound) {
			return writeError(ctx, http.StatusNotFound, "refund not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get refund failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.RefundEnvelopeResponse{Refund: mapper.RefundToResponse(item)})
}

func (c *RefundController) ListRefunds(ctx echo.Context) error {
	req, err := types.NewListRefundsRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	items, err := c.refundService.ListRefunds(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List refunds failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListRefundsResponse{Refunds: mapper.RefundsToResponse(items)})
}

func (c *RefundController) ListChargeRefunds(ctx echo.Context) error {
	req, err := types.NewChargeRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	items, err := c.refundService.ListChargeRefunds(ctx.Request().Context(), req.GetChargeId())
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List charge refunds failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListRefundsResponse{Refunds: mapper.RefundsToResponse(items)})
}

func (c *RefundController) GetRefundability(ctx echo.Context) error {
	req, err := types.NewChargeRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	summary, err := c.refundService.GetRefundSummary(ctx.Request().Context(), req.GetChargeId())
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get refundability failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.RefundSummaryToResponse(summary))
}

func (c *RefundController) SyncChargeRefunds(ctx echo.Context) error {
	req, err := types.NewChargeRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	items, err := c.refundService.SyncChargeRefunds(ctx.Request().Context(), req.GetChargeId())
	if err != nil {
		return c.writeRefundError(ctx, err, "Sync charge refunds failed")
	}

	return ctx.JSON(http.StatusOK, &types.ListRefundsResponse{Refunds: mapper.RefundsToResponse(items)})
}

func (c *RefundController) ListPayments(ctx echo.Context) error {
	req, err := types.NewListPaymentsRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	items, err := c.refundService.ListPayments(ctx.Request().Context(), req)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List payments failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListPaymentsResponse{Payments: mapper.PaymentsToResponse(items)})
}

func (c *RefundController) writeRefundError(ctx echo.Context, err error, logMessage string) error {
	var gatewayErr *provider.Error

	switch {
	case errors.Is(err, service.ErrAlreadyRefunded),
		errors.Is(err, service.ErrAmountExceedsRemaining),
		errors.Is(err, service.ErrOriginalAmountUnresolvable),
		errors.Is(err, service.ErrInvalidRequest):
		return writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRefundNotFound):
		return writeError(ctx, http.StatusNotFound, "refund not found")
	case errors.As(err, &gatewayErr):
		if gatewayErr.Unavailable {
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn(logMessage)
			return writeError(ctx, http.StatusServiceUnavailable, gatewayErr.Message)
		}
		return writeError(ctx, http.StatusBadRequest, gatewayErr.Message)
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(logMessage)
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func writeValidationError(ctx echo.Context, err error) error {
	var vErr *types.ValidationError
	if errors.As(err, &vErr) {
		return ctx.JSON(http.StatusUnprocessableEntity, &types.ErrorResponse{Error: "validation failed", Errors: vErr.Fields})
	}
	return writeError(ctx, http.StatusBadRequest, err.Error())
}

func writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
