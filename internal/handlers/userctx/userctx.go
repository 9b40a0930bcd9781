// Package userctx carries the authenticated wallet owner through request context.
package userctx

import (
	"context"

	"github.com/lalita/wallet/internal/models"
)

type userKey struct{}

func New(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// FromContext returns the user put by auth middleware
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey{}).(models.User)
	return u, ok
}
