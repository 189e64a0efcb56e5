package middleware

import (
	"context"

	"connectrpc.com/connect"

	"github.com/hamori-app/hamori/internal/validation"
)

// ValidationInterceptor rejects requests whose message fails its
// `validate` tags with CodeInvalidArgument before the handler runs.
func ValidationInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if msg := req.Any(); msg != nil {
				if err := validation.Struct(msg); err != nil {
					return nil, connect.NewError(connect.CodeInvalidArgument, err)
				}
			}
			return next(ctx, req)
		}
	}
}
