package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/syncplane/syncplane/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GRPCClient implements Transport against a plugin process reachable at a
// local socket or container address. Connection and deadline failures map to
// transport errors, which are always sync-fatal.
type GRPCClient struct {
	conn *grpc.ClientConn
}

func Dial(target string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, types.NewTransportError(fmt.Errorf("failed to dial plugin at %s: %s", target, err))
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) NegotiateSchema(ctx context.Context) ([]*types.TableDef, error) {
	resp := new(SchemaResponse)
	if err := c.conn.Invoke(ctx, methodNegotiateSchema, new(SchemaRequest), resp); err != nil {
		return nil, types.NewTransportError(err)
	}
	return resp.Tables, nil
}

func (c *GRPCClient) Sync(ctx context.Context, req SyncRequest) (Stream, error) {
	desc := &grpc.StreamDesc{StreamName: "Sync", ServerStreams: true}
	clientStream, err := c.conn.NewStream(ctx, desc, methodSync)
	if err != nil {
		return nil, types.NewTransportError(err)
	}
	if err := clientStream.SendMsg(&req); err != nil {
		return nil, types.NewTransportError(err)
	}
	if err := clientStream.CloseSend(); err != nil {
		return nil, types.NewTransportError(err)
	}
	return &grpcStream{stream: clientStream}, nil
}

func (c *GRPCClient) Close(_ context.Context) error {
	return c.conn.Close()
}

type grpcStream struct {
	stream grpc.ClientStream
}

func (s *grpcStream) Recv() (*Frame, error) {
	frame := new(Frame)
	if err := s.stream.RecvMsg(frame); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, types.NewTransportError(err)
	}
	return frame, nil
}
