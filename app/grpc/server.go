package grpc

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-refunds/app/mapper"
	"github.com/vibast-solutions/ms-go-refunds/app/provider"
	"github.com/vibast-solutions/ms-go-refunds/app/service"
	"github.com/vibast-solutions/ms-go-refunds/app/types"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Server struct {
	types.UnimplementedRefundsServiceServer
	refundService *service.RefundService
}

func NewServer(refundService *service.RefundService) *Server {
	return &Server{refundService: refundService}
}

func (s *Server) Health(_ context.Context, _ *types.HealthRequest) (*types.HealthResponse, error) {
	return &types.HealthResponse{Status: "ok"}, nil
}

func (s *Server) CreateFullRefund(ctx context.Context, req *types.CreateRefundRequest) (*types.RefundEnvelopeResponse, error) {
	l := loggerWithContext(ctx)
	if err := req.Validate(); err != nil {
		l.WithError(err).Debug("Create full refund validation failed")
		return nil, validationStatus(err)
	}

	item, err := s.refundService.CreateFullRefund(ctx, req)
	if err != nil {
		return nil, refundStatus(ctx, err, "Create full refund failed")
	}

	return &types.RefundEnvelopeResponse{Refund: mapper.RefundToResponse(item)}, nil
}

func (s *Server) CreatePartialRefund(ctx context.Context, req *types.CreateRefundRequest) (*types.RefundEnvelopeResponse, error) {
	l := loggerWithContext(ctx)
	if err := req.Validate(); err != nil {
		l.WithError(err).Debug("Create partial refund validation failed")
		return nil, validationStatus(err)
	}

	item, err := s.refundService.CreatePartialRefund(ctx, req)
	if err != nil {
		return nil, refundStatus(ctx, err, "Create partial refund failed")
	}

	return &types.RefundEnvelopeResponse{Refund: mapper.RefundToResponse(item)}, nil
}

func (s *Server) GetRefund(ctx context.Context, req *types.GetRefundRequest) (*types.RefundEnvelopeResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, validationStatus(err)
	}

	item, err := s.refundService.GetRefundStatus(ctx, req.GetRefundId())
	if err != nil {
		if errors.Is(err, service.ErrRefundNotFound) {
			return nil, status.Error(codes.NotFound, "refund not found")
		}
		loggerWithContext(ctx).WithError(err).Error("Get refund failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return &types.RefundEnvelopeResponse{Refund: mapper.RefundToResponse(item)}, nil
}

func (s *Server) ListRefunds(ctx context.Context, req *types.ListRefundsRequest) (*types.ListRefundsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, validationStatus(err)
	}

	items, err := s.refundService.ListRefunds(ctx, req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		loggerWithContext(ctx).WithError(err).Error("List refunds failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return &types.ListRefundsResponse{Refunds: mapper.RefundsToResponse(items)}, nil
}

func refundStatus(ctx context.Context, err error, logMessage string) error {
	var gatewayErr *provider.Error

	switch {
	case errors.Is(err, service.ErrAlreadyRefunded),
		errors.Is(err, service.ErrAmountExceedsRemaining),
		errors.Is(err, service.ErrOriginalAmountUnresolvable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &gatewayErr):
		if gatewayErr.Unavailable {
			loggerWithContext(ctx).WithError(err).Warn(logMessage)
			return status.Error(codes.Unavailable, gatewayErr.Message)
		}
		return status.Error(codes.FailedPrecondition, gatewayErr.Message)
	default:
		loggerWithContext(ctx).WithError(err).Error(logMessage)
		return status.Error(codes.Internal, "internal server error")
	}
}

// validationStatus attaches one BadRequest field violation per invalid field.
func validationStatus(err error) error {
	var vErr *types.ValidationError
	if !errors.As(err, &vErr) {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	st := status.New(codes.InvalidArgument, "validation failed")
	details := &errdetails.BadRequest{}
	for field, description := range vErr.Fields {
		details.FieldViolations = append(details.FieldViolations, &errdetails.BadRequest_FieldViolation{
			Field:       field,
			Description: description,
		})
	}
	withDetails, detailErr := st.WithDetails(details)
	if detailErr != nil {
		return st.Err()
	}
	return withDetails.Err()
}
