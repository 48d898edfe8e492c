package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "invoiceextractor.v1.InvoiceExtraction"

const (
	MethodProcessInvoices = "/" + ServiceName + "/ProcessInvoices"
	MethodListFields      = "/" + ServiceName + "/ListFields"
	MethodListPresets     = "/" + ServiceName + "/ListPresets"
)

// InvoiceExtractionServer is the server API. Requests and responses are
// google.protobuf.Struct messages.
type InvoiceExtractionServer interface {
	ProcessInvoices(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListFields(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPresets(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterInvoiceExtractionServer(s grpc.ServiceRegistrar, srv InvoiceExtractionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler(method string, call func(InvoiceExtractionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InvoiceExtractionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InvoiceExtractionServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the InvoiceExtraction service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InvoiceExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ProcessInvoices",
			Handler:    unaryHandler(MethodProcessInvoices, InvoiceExtractionServer.ProcessInvoices),
		},
		{
			MethodName: "ListFields",
			Handler:    unaryHandler(MethodListFields, InvoiceExtractionServer.ListFields),
		},
		{
			MethodName: "ListPresets",
			Handler:    unaryHandler(MethodListPresets, InvoiceExtractionServer.ListPresets),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "invoiceextractor/v1/service.proto",
}

// Client calls the InvoiceExtraction service over cc.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ProcessInvoices(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodProcessInvoices, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListFields(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodListFields, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListPresets(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodListPresets, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
