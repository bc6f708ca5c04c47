// Package access is the role gate evaluated before every engine operation.
package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/custom-orders/internal/apperr"
)

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleClient Role = "CLIENT"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleClient:
		return RoleClient, nil
	}
	return "", fmt.Errorf("%w: invalid role %q", apperr.ErrBadRequest, s)
}

// Identity is the authenticated caller as yielded by the identity provider.
type Identity struct {
	UserID   string
	Username string
	Role     Role
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

func (i Identity) authenticated() bool { return i.UserID != "" }

func CanRead(who Identity, ownerID string) bool {
	return who.authenticated() && (who.IsAdmin() || who.UserID == ownerID)
}

// CanWrite covers update and delete. Same rule as CanRead today.
func CanWrite(who Identity, ownerID string) bool {
	return CanRead(who, ownerID)
}

// CanAdmin covers resource management and order status changes.
func CanAdmin(who Identity) bool {
	return who.authenticated() && who.IsAdmin()
}

func RequireIdentity(who Identity) error {
	if !who.authenticated() {
		return apperr.ErrUnauthorized
	}
	return nil
}

func RequireRead(who Identity, ownerID string) error {
	if !who.authenticated() {
		return apperr.ErrUnauthorized
	}
	if !CanRead(who, ownerID) {
		return fmt.Errorf("%w: not authorized to view this order", apperr.ErrForbidden)
	}
	return nil
}

func RequireWrite(who Identity, ownerID string) error {
	if !who.authenticated() {
		return apperr.ErrUnauthorized
	}
	if !CanWrite(who, ownerID) {
		return fmt.Errorf("%w: not authorized to modify this order", apperr.ErrForbidden)
	}
	return nil
}

func RequireAdmin(who Identity) error {
	if !who.authenticated() {
		return apperr.ErrUnauthorized
	}
	if !CanAdmin(who) {
		return fmt.Errorf("%w: admin role required", apperr.ErrForbidden)
	}
	return nil
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, who Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, who)
}

func FromContext(ctx context.Context) (Identity, bool) {
	who, ok := ctx.Value(ctxKey{}).(Identity)
	return who, ok
}
