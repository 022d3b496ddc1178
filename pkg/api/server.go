package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cuemby/rolekeeper/pkg/role"
	"github.com/cuemby/rolekeeper/pkg/storage"
)

// ServiceName is the full gRPC name of the role status service
const ServiceName = "rolekeeper.v1.RoleStatus"

// RoleSource is what the server reads roles from; the reconciler implements it
type RoleSource interface {
	Roles() []*role.Role
	Get(key string) (*role.Role, bool)
	StopRole(key string) error
}

// StatusServer is the role status service
type StatusServer interface {
	ListRoles(ctx context.Context, req *emptypb.Empty) (*structpb.ListValue, error)
	GetRole(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	StopRole(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// Server serves the live status of the reconciler's roles over gRPC
type Server struct {
	source RoleSource
	grpc   *grpc.Server
	health *health.Server
	logger zerolog.Logger
	now    func() time.Time
}

// NewServer creates a server over source. With readOnly set, StopRole is refused.
func NewServer(source RoleSource, readOnly bool, logger zerolog.Logger) *Server {
	interceptors := []grpc.UnaryServerInterceptor{LoggingInterceptor(logger)}
	if readOnly {
		interceptors = append(interceptors, ReadOnlyInterceptor())
	}
	s := &Server{
		source: source,
		grpc:   grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...)),
		health: health.NewServer(),
		logger: logger,
		now:    time.Now,
	}
	s.grpc.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve accepts connections on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("Status API listening")
	return s.grpc.Serve(lis)
}

// Start listens on addr and serves until Stop
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Stop marks the service not serving and drains in-flight calls
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// ListRoles returns the status of every role, sorted by key
func (s *Server) ListRoles(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	now := s.now()
	out := &structpb.ListValue{}
	for _, ro := range s.source.Roles() {
		st, err := encodeStatus(ro.Status(now))
		if err != nil {
			return nil, status.Errorf(codes.Internal, "role %s: %v", ro.Key(), err)
		}
		out.Values = append(out.Values, structpb.NewStructValue(st))
	}
	return out, nil
}

// GetRole returns the status of the role named "<group>/<role>"
func (s *Server) GetRole(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	ro, ok := s.source.Get(req.GetValue())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "role %q not found", req.GetValue())
	}
	st, err := encodeStatus(ro.Status(s.now()))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "role %s: %v", ro.Key(), err)
	}
	return st, nil
}

// StopRole stops the role; the reconciler removes it once released
func (s *Server) StopRole(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.source.StopRole(req.GetValue()); err != nil {
		if errors.Is(err, storage.ErrRoleNotFound) {
			return nil, status.Errorf(codes.NotFound, "role %q not found", req.GetValue())
		}
		return nil, status.Errorf(codes.Internal, "stop %s: %v", req.GetValue(), err)
	}
	s.logger.Info().Str("role", req.GetValue()).Msg("Role stop requested over API")
	return &emptypb.Empty{}, nil
}

// encodeStatus carries a role status as a protobuf Struct using its JSON field names
func encodeStatus(st role.Status) (*structpb.Struct, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// DecodeStatus is the inverse of the server's encoding
func DecodeStatus(s *structpb.Struct) (role.Status, error) {
	var st role.Status
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(data, &st)
	return st, err
}
