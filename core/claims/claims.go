// Package claims carries the authenticated identity through the request
// context. The session middleware sets it; handlers only read.
package claims

import (
	"context"
	"errors"
)

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

type Claims struct {
	UserID string
	Role   string
}

type ctxKey int

const claimsKey ctxKey = 1

func Set(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func Get(ctx context.Context) (Claims, error) {
	v, ok := ctx.Value(claimsKey).(Claims)
	if !ok {
		return Claims{}, errors.New("claim value missing from context")
	}
	return v, nil
}

func IsAdmin(ctx context.Context) bool {
	c, err := Get(ctx)
	if err != nil {
		return false
	}

	return c.Role == RoleAdmin
}

// CanAccess reports whether the caller may touch a resource owned by
// ownerID: owners and admins only. Handlers answer 404 rather than 403 on
// failure so order ids stay unprobeable.
func CanAccess(ctx context.Context, ownerID string) bool {
	c, err := Get(ctx)
	if err != nil {
		return false
	}

	return c.UserID == ownerID || c.Role == RoleAdmin
}
