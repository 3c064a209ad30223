package server

import (
	"log/slog"

	"campus-chat/auth"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
)

// NewGRPCServer builds the gRPC server with logging and authentication
// interceptors and the chat service registered. Health is public.
func NewGRPCServer(log *slog.Logger, tokens auth.TokenIssuer, chatServer ChatServiceServer, opts ...grpc.ServerOption) *grpc.Server {
	authenticator := auth.NewAuthenticator(tokens, HealthMethod)
	opts = append(opts,
		grpc.ChainUnaryInterceptor(
			sdkgrpc.UnaryLoggingInterceptor(log),
			authenticator.UnaryInterceptor,
		),
		grpc.ChainStreamInterceptor(authenticator.StreamInterceptor),
	)
	s := grpc.NewServer(opts...)
	RegisterChatServiceServer(s, chatServer)
	return s
}
