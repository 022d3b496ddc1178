package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cuemby/rolekeeper/pkg/api"
	"github.com/cuemby/rolekeeper/pkg/role"
)

// Client talks to the status API of a running daemon
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to addr. The API listens on loopback by default and
// carries no credentials.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Ping checks that the status service is serving
func (c *Client) Ping(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("status API is %s", resp.GetStatus())
	}
	return nil
}

// ListRoles returns the live status of every role
func (c *Client) ListRoles(ctx context.Context) ([]role.Status, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, api.MethodListRoles, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	statuses := make([]role.Status, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		st, err := api.DecodeStatus(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("failed to decode role status: %w", err)
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// GetRole returns the live status of the role named "<group>/<role>"
func (c *Client) GetRole(ctx context.Context, key string) (role.Status, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.MethodGetRole, wrapperspb.String(key), out); err != nil {
		return role.Status{}, err
	}
	return api.DecodeStatus(out)
}

// StopRole asks the daemon to stop and release the role
func (c *Client) StopRole(ctx context.Context, key string) error {
	return c.conn.Invoke(ctx, api.MethodStopRole, wrapperspb.String(key), &emptypb.Empty{})
}
