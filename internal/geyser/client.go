package geyser

import (
	"context"
	"fmt"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"google.golang.org/grpc"
)

// Stream is the duplex subscribe stream. pb.Geyser_SubscribeClient satisfies it.
type Stream interface {
	Send(*pb.SubscribeRequest) error
	Recv() (*pb.SubscribeUpdate, error)
	CloseSend() error
}

// Client is a connected Geyser gRPC client.
type Client struct {
	conn     *grpc.ClientConn
	geyser   pb.GeyserClient
	endpoint string
	version  string
}

// Endpoint returns the configured server URI.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Version returns the server version reported during Connect, if any.
func (c *Client) Version() string {
	return c.version
}

// Subscribe opens the bidirectional subscribe stream. Cancelling ctx aborts
// the stream and unblocks any pending Recv.
func (c *Client) Subscribe(ctx context.Context) (Stream, error) {
	stream, err := c.geyser.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("open subscribe stream: %w", err)
	}
	return stream, nil
}

// Ping performs a unary ping and returns the echoed count.
func (c *Client) Ping(ctx context.Context, count int32) (int32, error) {
	resp, err := c.geyser.Ping(ctx, &pb.PingRequest{Count: count})
	if err != nil {
		return 0, fmt.Errorf("ping: %w", err)
	}
	return resp.GetCount(), nil
}

// GetVersion returns the server version string.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	resp, err := c.geyser.GetVersion(ctx, &pb.GetVersionRequest{})
	if err != nil {
		return "", fmt.Errorf("get version: %w", err)
	}
	return resp.GetVersion(), nil
}

// GetSlot returns the current slot at the given commitment.
func (c *Client) GetSlot(ctx context.Context, commitment CommitmentLevel) (uint64, error) {
	level := pb.CommitmentLevel(commitment)
	resp, err := c.geyser.GetSlot(ctx, &pb.GetSlotRequest{Commitment: &level})
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	return resp.GetSlot(), nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
