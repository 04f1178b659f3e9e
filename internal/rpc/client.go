package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"PcapLedger/internal/api"
	"PcapLedger/internal/engine/filter"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the report service.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to a report service at target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("did not connect: %w", err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes a connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Records fetches the records matching raw.
func (c *Client) Records(ctx context.Context, raw filter.RawSpec) (*api.RecordsResponse, error) {
	var resp api.RecordsResponse
	if err := c.call(ctx, recordsMethod, raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Summarize fetches statistics over the records matching raw.
func (c *Client) Summarize(ctx context.Context, raw filter.RawSpec) (*api.StatisticsResponse, error) {
	var resp api.StatisticsResponse
	if err := c.call(ctx, summarizeMethod, raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method string, raw filter.RawSpec, out any) error {
	reply := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, StructFromRawSpec(raw), reply); err != nil {
		return err
	}
	body, err := protojson.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	return nil
}
