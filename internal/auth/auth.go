package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated requester attached to the request context.
// Identity and sessions are owned by the marketplace's auth subsystem;
// this service only validates access tokens and resolves the role.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type ServiceAPI interface {
	ValidateAccessToken(tokenString string) (*Claims, error)
	GetUser(userID string) (*User, error)
}

type ctxKey string

const userContextKey ctxKey = "auth.user"

func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey).(*User)
	return user, ok && user != nil
}
