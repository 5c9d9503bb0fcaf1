//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"

	authpb "github.com/vibast-solutions/ms-go-auth/app/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultRefundsCallerAPIKey   = "refunds-caller-key"
	defaultRefundsNoAccessAPIKey = "refunds-no-access-key"
	defaultRefundsAppAPIKey      = "refunds-app-api-key"
	refundsAuthMockAddr          = "0.0.0.0:38085"
)

func refundsCallerAPIKey() string {
	if value := strings.TrimSpace(os.Getenv("REFUNDS_CALLER_API_KEY")); value != "" {
		return value
	}
	return defaultRefundsCallerAPIKey
}

func refundsNoAccessAPIKey() string {
	if value := strings.TrimSpace(os.Getenv("REFUNDS_NO_ACCESS_API_KEY")); value != "" {
		return value
	}
	return defaultRefundsNoAccessAPIKey
}

func refundsAppAPIKey() string {
	if value := strings.TrimSpace(os.Getenv("REFUNDS_APP_API_KEY")); value != "" {
		return value
	}
	return defaultRefundsAppAPIKey
}

type refundsAuthGRPCServer struct {
	authpb.UnimplementedAuthServiceServer
}

func (s *refundsAuthGRPCServer) ValidateInternalAccess(ctx context.Context, req *authpb.ValidateInternalAccessRequest) (*authpb.ValidateInternalAccessResponse, error) {
	if incomingRefundsAPIKey(ctx) != refundsAppAPIKey() {
		return nil, status.Error(codes.Unauthenticated, "unauthorized caller")
	}

	apiKey := strings.TrimSpace(req.GetApiKey())
	switch apiKey {
	case refundsCallerAPIKey():
		return &authpb.ValidateInternalAccessResponse{
			ServiceName:   "billing-gateway",
			AllowedAccess: []string{"refunds-service", "payments-service", "notifications-service"},
		}, nil
	case refundsNoAccessAPIKey():
		return &authpb.ValidateInternalAccessResponse{
			ServiceName:   "billing-gateway",
			AllowedAccess: []string{"payments-service"},
		}, nil
	default:
		return nil, status.Error(codes.Unauthenticated, "invalid api key")
	}
}

func incomingRefundsAPIKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("x-api-key")
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func TestMain(m *testing.M) {
	if os.Getenv("REFUNDS_CALLER_API_KEY") == "" {
		_ = os.Setenv("REFUNDS_CALLER_API_KEY", defaultRefundsCallerAPIKey)
	}
	if os.Getenv("REFUNDS_NO_ACCESS_API_KEY") == "" {
		_ = os.Setenv("REFUNDS_NO_ACCESS_API_KEY", defaultRefundsNoAccessAPIKey)
	}
	if os.Getenv("REFUNDS_APP_API_KEY") == "" {
		_ = os.Setenv("REFUNDS_APP_API_KEY", defaultRefundsAppAPIKey)
	}

	listener, err := net.Listen("tcp", refundsAuthMockAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start refunds auth grpc mock: %v\n", err)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer()
	authpb.RegisterAuthServiceServer(grpcServer, &refundsAuthGRPCServer{})

	go func() {
		_ = grpcServer.Serve(listener)
	}()

	exitCode := m.Run()

	grpcServer.GracefulStop()
	_ = listener.Close()

	os.Exit(exitCode)
}
