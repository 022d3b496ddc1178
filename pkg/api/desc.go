package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Full method names of the role status service
const (
	MethodListRoles = "/" + ServiceName + "/ListRoles"
	MethodGetRole   = "/" + ServiceName + "/GetRole"
	MethodStopRole  = "/" + ServiceName + "/StopRole"
)

// The service only carries well-known protobuf types, so its descriptor is
// declared here rather than generated.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRoles", Handler: listRolesHandler},
		{MethodName: "GetRole", Handler: getRoleHandler},
		{MethodName: "StopRole", Handler: stopRoleHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rolekeeper/v1/status",
}

func listRolesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServer).ListRoles(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodListRoles}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatusServer).ListRoles(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getRoleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServer).GetRole(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetRole}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatusServer).GetRole(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func stopRoleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServer).StopRole(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodStopRole}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatusServer).StopRole(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}
