package types

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	RefundsService_Health_FullMethodName              = "/refunds.RefundsService/Health"
	RefundsService_CreateFullRefund_FullMethodName    = "/refunds.RefundsService/CreateFullRefund"
	RefundsService_CreatePartialRefund_FullMethodName = "/refunds.RefundsService/CreatePartialRefund"
	RefundsService_GetRefund_FullMethodName           = "/refunds.RefundsService/GetRefund"
	RefundsService_ListRefunds_FullMethodName         = "/refunds.RefundsService/ListRefunds"
)

// WireCodecName is the gRPC content-subtype the refunds service speaks.
const WireCodecName = "proto"

// wireCodec carries service messages as google.protobuf.Struct. Generated
// protobuf messages pass straight through.
type wireCodec struct{}

func (wireCodec) Marshal(v interface{}) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}

	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := &structpb.Struct{}
	if err := protojson.Unmarshal(body, doc); err != nil {
		return nil, err
	}
	return proto.Marshal(doc)
}

func (wireCodec) Unmarshal(data []byte, v interface{}) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}

	doc := &structpb.Struct{}
	if err := proto.Unmarshal(data, doc); err != nil {
		return err
	}
	if len(doc.GetFields()) == 0 {
		return nil
	}
	body, err := protojson.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func (wireCodec) Name() string {
	return WireCodecName
}

// ServerCodec makes a gRPC server decode the refunds service messages. The
// codec is scoped to the server so other clients in the process keep the
// default protobuf codec.
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(wireCodec{})
}

type RefundsServiceClient interface {
	Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error)
	CreateFullRefund(ctx context.Context, in *CreateRefundRequest, opts ...grpc.CallOption) (*RefundEnvelopeResponse, error)
	CreatePartialRefund(ctx context.Context, in *CreateRefundRequest, opts ...grpc.CallOption) (*RefundEnvelopeResponse, error)
	GetRefund(ctx context.Context, in *GetRefundRequest, opts ...grpc.CallOption) (*RefundEnvelopeResponse, error)
	ListRefunds(ctx context.Context, in *ListRefundsRequest, opts ...grpc.CallOption) (*ListRefundsResponse, error)
}

type refundsServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRefundsServiceClient(cc grpc.ClientConnInterface) RefundsServiceClient {
	return &refundsServiceClient{cc: cc}
}

func (c *refundsServiceClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.ForceCodec(wireCodec{})}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *refundsServiceClient) Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.invoke(ctx, RefundsService_Health_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *refundsServiceClient) CreateFullRefund(ctx context.Context, in *CreateRefundRequest, opts ...grpc.CallOption) (*RefundEnvelopeResponse, error) {
	out := new(RefundEnvelopeResponse)
	if err := c.invoke(ctx, RefundsService_CreateFullRefund_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *refundsServiceClient) CreatePartialRefund(ctx context.Context, in *CreateRefundRequest, opts ...grpc.CallOption) (*RefundEnvelopeResponse, error) {
	out := new(RefundEnvelopeResponse)
	if err := c.invoke(ctx, RefundsService_CreatePartialRefund_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *refundsServiceClient) GetRefund(ctx context.Context, in *GetRefundRequest, opts ...grpc.CallOption) (*RefundEnvelopeResponse, error) {
	out := new(RefundEnvelopeResponse)
	if err := c.invoke(ctx, RefundsService_GetRefund_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *refundsServiceClient) ListRefunds(ctx context.Context, in *ListRefundsRequest, opts ...grpc.CallOption) (*ListRefundsResponse, error) {
	out := new(ListRefundsResponse)
	if err := c.invoke(ctx, RefundsService_ListRefunds_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

type RefundsServiceServer interface {
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
	CreateFullRefund(context.Context, *CreateRefundRequest) (*RefundEnvelopeResponse, error)
	CreatePartialRefund(context.Context, *CreateRefundRequest) (*RefundEnvelopeResponse, error)
	GetRefund(context.Context, *GetRefundRequest) (*RefundEnvelopeResponse, error)
	ListRefunds(context.Context, *ListRefundsRequest) (*ListRefundsResponse, error)
	mustEmbedUnimplementedRefundsServiceServer()
}

// UnimplementedRefundsServiceServer must be embedded by every server implementation.
type UnimplementedRefundsServiceServer struct{}

func (UnimplementedRefundsServiceServer) Health(context.Context, *HealthRequest) (*HealthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Health not implemented")
}
func (UnimplementedRefundsServiceServer) CreateFullRefund(context.Context, *CreateRefundRequest) (*RefundEnvelopeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateFullRefund not implemented")
}
func (UnimplementedRefundsServiceServer) CreatePartialRefund(context.Context, *CreateRefundRequest) (*RefundEnvelopeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreatePartialRefund not implemented")
}
func (UnimplementedRefundsServiceServer) GetRefund(context.Context, *GetRefundRequest) (*RefundEnvelopeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetRefund not implemented")
}
func (UnimplementedRefundsServiceServer) ListRefunds(context.Context, *ListRefundsRequest) (*ListRefundsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListRefunds not implemented")
}
func (UnimplementedRefundsServiceServer) mustEmbedUnimplementedRefundsServiceServer() {}

func RegisterRefundsServiceServer(s grpc.ServiceRegistrar, srv RefundsServiceServer) {
	s.RegisterService(&RefundsService_ServiceDesc, srv)
}

func _RefundsService_Health_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RefundsServiceServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RefundsService_Health_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RefundsServiceServer).Health(ctx, req.(*HealthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RefundsService_CreateFullRefund_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateRefundRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RefundsServiceServer).CreateFullRefund(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RefundsService_CreateFullRefund_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RefundsServiceServer).CreateFullRefund(ctx, req.(*CreateRefundRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RefundsService_CreatePartialRefund_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateRefundRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RefundsServiceServer).CreatePartialRefund(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RefundsService_CreatePartialRefund_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RefundsServiceServer).CreatePartialRefund(ctx, req.(*CreateRefundRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RefundsService_GetRefund_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetRefundRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RefundsServiceServer).GetRefund(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RefundsService_GetRefund_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RefundsServiceServer).GetRefund(ctx, req.(*GetRefundRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RefundsService_ListRefunds_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListRefundsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RefundsServiceServer).ListRefunds(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RefundsService_ListRefunds_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RefundsServiceServer).ListRefunds(ctx, req.(*ListRefundsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var RefundsService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "refunds.RefundsService",
	HandlerType: (*RefundsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: _RefundsService_Health_Handler},
		{MethodName: "CreateFullRefund", Handler: _RefundsService_CreateFullRefund_Handler},
		{MethodName: "CreatePartialRefund", Handler: _RefundsService_CreatePartialRefund_Handler},
		{MethodName: "GetRefund", Handler: _RefundsService_GetRefund_Handler},
		{MethodName: "ListRefunds", Handler: _RefundsService_ListRefunds_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "refunds.proto",
}
