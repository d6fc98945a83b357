package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	internal "github.com/kodisha/payments/internal"
	userdm "github.com/kodisha/payments/internal/core/datamodel/user"
)

type UserRepositoryAPI interface {
	GetByID(id string) (*userdm.User, error)
}

type Service struct {
	publicKey *rsa.PublicKey
	users     UserRepositoryAPI
}

func NewService(publicKey *rsa.PublicKey, users UserRepositoryAPI) *Service {
	return &Service{
		publicKey: publicKey,
		users:     users,
	}
}

func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken.WithCause(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, internal.ErrInvalidToken
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, internal.ErrInvalidToken
	}

	return claims, nil
}

func (s *Service) GetUser(userID string) (*User, error) {
	u, err := s.users.GetByID(userID)
	if err != nil {
		return nil, internal.ErrInvalidToken.WithCause(err)
	}
	if !u.IsActive {
		return nil, internal.NewForbiddenError("User account is inactive", internal.ErrCodeUnauthorizedAccess)
	}

	return &User{
		ID:    u.ID,
		Email: u.Email,
		Role:  u.Role,
	}, nil
}
