package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

const (
	// TokenHeader is the header name for the API token.
	TokenHeader = "X-Api-Token"
)

var errInvalidToken = errors.New("missing or invalid API token")

// tokenInterceptor validates the API token on unary and streaming calls.
type tokenInterceptor struct {
	token string
}

// NewTokenInterceptor creates an interceptor that rejects calls whose
// X-Api-Token header does not match token.
func NewTokenInterceptor(token string) connect.Interceptor {
	return &tokenInterceptor{token: token}
}

func (i *tokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if !i.valid(req.Header().Get(TokenHeader)) {
			return nil, connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
		}
		return next(ctx, req)
	}
}

func (i *tokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *tokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if !i.valid(conn.RequestHeader().Get(TokenHeader)) {
			return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
		}
		return next(ctx, conn)
	}
}

func (i *tokenInterceptor) valid(token string) bool {
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) == 1
}

// tokenInjector attaches the API token to outgoing calls.
type tokenInjector struct {
	token string
}

// NewTokenInjector creates a client interceptor that sends token in the
// X-Api-Token header.
func NewTokenInjector(token string) connect.Interceptor {
	return &tokenInjector{token: token}
}

func (i *tokenInjector) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			req.Header().Set(TokenHeader, i.token)
		}
		return next(ctx, req)
	}
}

func (i *tokenInjector) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		conn.RequestHeader().Set(TokenHeader, i.token)
		return conn
	}
}

func (i *tokenInjector) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
