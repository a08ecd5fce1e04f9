// Package inspect serves a read-only gRPC view of live decision engines.
//
// Requests and responses are google.protobuf.Struct messages so the service
// needs no generated code.
package inspect

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "socleer.inspect.v1.Inspector"

const (
	getNodeMethod   = "/" + ServiceName + "/GetNode"
	listNodesMethod = "/" + ServiceName + "/ListNodes"
	getStatsMethod  = "/" + ServiceName + "/GetStats"
)

// InspectorServer is the server API for the Inspector service.
type InspectorServer interface {
	// GetNode describes one node's engine. The request carries {"node": <id>}.
	GetNode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListNodes returns {"nodes": [...]} in ascending order.
	ListNodes(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// GetStats returns the run counters.
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes the Inspector service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InspectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetNode", Handler: getNodeHandler},
		{MethodName: "ListNodes", Handler: listNodesHandler},
		{MethodName: "GetStats", Handler: getStatsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "socleer/inspect/v1/inspect.proto",
}

// RegisterInspectorServer registers srv with s.
func RegisterInspectorServer(s grpc.ServiceRegistrar, srv InspectorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func getNodeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).GetNode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getNodeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).GetNode(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listNodesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).ListNodes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listNodesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).ListNodes(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStatsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).GetStats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Client is a thin Inspector client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// GetNode fetches the description of node id.
func (c *Client) GetNode(ctx context.Context, id uint, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"node": id})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getNodeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListNodes fetches the installed node IDs.
func (c *Client) ListNodes(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listNodesMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStats fetches the run counters.
func (c *Client) GetStats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStatsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
