package auth

import (
	"context"
	"strings"

	"campus-chat/domain/chat"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const identityKey contextKey = "identity"

// Authenticator validates the bearer token of incoming gRPC calls and puts
// the resulting identity in the call context.
type Authenticator struct {
	tokens        TokenIssuer
	publicMethods map[string]struct{}
}

func NewAuthenticator(tokens TokenIssuer, publicMethods ...string) *Authenticator {
	public := make(map[string]struct{}, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = struct{}{}
	}
	return &Authenticator{tokens: tokens, publicMethods: public}
}

func (a *Authenticator) UnaryInterceptor(ctx context.Context, req any,
	info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if a.isPublicMethod(info.FullMethod) {
		return handler(ctx, req)
	}
	newCtx, err := a.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return handler(newCtx, req)
}

func (a *Authenticator) StreamInterceptor(srv any, ss grpc.ServerStream,
	info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if a.isPublicMethod(info.FullMethod) {
		return handler(srv, ss)
	}
	newCtx, err := a.authenticate(ss.Context())
	if err != nil {
		return err
	}
	return handler(srv, &authenticatedStream{ServerStream: ss, ctx: newCtx})
}

func (a *Authenticator) authenticate(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "metadata is missing")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "authorization token is missing")
	}
	identity, err := a.tokens.ValidateToken(strings.TrimPrefix(values[0], "Bearer "))
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return WithIdentity(ctx, identity), nil
}

func (a *Authenticator) isPublicMethod(method string) bool {
	_, ok := a.publicMethods[method]
	return ok
}

// authenticatedStream overrides the context of a server stream.
type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}

func WithIdentity(ctx context.Context, identity chat.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the caller set by the interceptors.
func IdentityFromContext(ctx context.Context) (chat.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(chat.Identity)
	return identity, ok
}
