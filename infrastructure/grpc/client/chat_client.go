package client

import (
	"context"

	"campus-chat/infrastructure/grpc/server"
	"campus-chat/services"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// ChatClient speaks campuschat.v1.ChatService without a generated stub.
type ChatClient struct {
	cc    grpc.ClientConnInterface
	token string
}

func NewChatClient(cc grpc.ClientConnInterface, token string) *ChatClient {
	return &ChatClient{cc: cc, token: token}
}

func (c *ChatClient) withToken(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

func (c *ChatClient) Health(ctx context.Context, opts ...grpc.CallOption) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, server.HealthMethod, &structpb.Struct{}, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Connect opens the bidirectional frame stream.
func (c *ChatClient) Connect(ctx context.Context, opts ...grpc.CallOption) (*Stream, error) {
	stream, err := c.cc.NewStream(c.withToken(ctx), &server.ChatServiceDesc.Streams[0], server.ConnectMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &Stream{stream: stream}, nil
}

type Stream struct {
	stream grpc.ClientStream
}

func (s *Stream) Send(f services.Frame) error {
	msg, err := server.ToStruct(f)
	if err != nil {
		return err
	}
	return s.stream.SendMsg(msg)
}

func (s *Stream) Recv() (services.Frame, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return services.Frame{}, err
	}
	return server.FromStruct(msg)
}

func (s *Stream) CloseSend() error {
	return s.stream.CloseSend()
}
