package transport

import (
	"context"
	"errors"
	"io"

	"github.com/syncplane/syncplane/types"
	"github.com/syncplane/syncplane/utils/logger"
	"google.golang.org/grpc"
)

const (
	serviceName           = "syncplane.v1.Plugin"
	methodNegotiateSchema = "/syncplane.v1.Plugin/NegotiateSchema"
	methodSync            = "/syncplane.v1.Plugin/Sync"
)

type SchemaRequest struct{}

type SchemaResponse struct {
	Tables []*types.TableDef `json:"tables"`
}

// pluginService is the server-side contract behind the handwritten service
// descriptor. The wire protocol carries JSON frames, so no generated code is
// needed on either side of the boundary.
type pluginService interface {
	NegotiateSchema(ctx context.Context, req *SchemaRequest) (*SchemaResponse, error)
	Sync(req *SyncRequest, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*pluginService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "NegotiateSchema", Handler: negotiateSchemaHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Sync", Handler: syncHandler, ServerStreams: true},
	},
}

func negotiateSchemaHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SchemaRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(pluginService).NegotiateSchema(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodNegotiateSchema}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(pluginService).NegotiateSchema(ctx, req.(*SchemaRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func syncHandler(srv any, stream grpc.ServerStream) error {
	req := new(SyncRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(pluginService).Sync(req, stream)
}

// Server exposes any Transport (normally an InProcess plugin) over gRPC.
type Server struct {
	inner Transport
}

func NewServer(inner Transport) *Server {
	return &Server{inner: inner}
}

func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	registrar.RegisterService(&serviceDesc, s)
}

func (s *Server) NegotiateSchema(ctx context.Context, _ *SchemaRequest) (*SchemaResponse, error) {
	defs, err := s.inner.NegotiateSchema(ctx)
	if err != nil {
		return nil, err
	}
	return &SchemaResponse{Tables: defs}, nil
}

func (s *Server) Sync(req *SyncRequest, stream grpc.ServerStream) error {
	frames, err := s.inner.Sync(stream.Context(), *req)
	if err != nil {
		return err
	}
	for {
		frame, err := frames.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			logger.Errorf("sync stream failed: %s", err)
			return err
		}
		if err := stream.SendMsg(frame); err != nil {
			return err
		}
	}
}
