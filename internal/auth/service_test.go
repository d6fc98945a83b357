package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	internal "github.com/kodisha/payments/internal"
	userdm "github.com/kodisha/payments/internal/core/datamodel/user"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Module Suite")
}

// Mock user repository for testing
type mockUserRepository struct {
	users map[string]*userdm.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: map[string]*userdm.User{
			"user-1": {ID: "user-1", Email: "wanjiku@mail.com", Role: "guest", IsActive: true},
			"user-2": {ID: "user-2", Email: "dormant@mail.com", Role: "guest", IsActive: false},
		},
	}
}

func (m *mockUserRepository) GetByID(id string) (*userdm.User, error) {
	if u, exists := m.users[id]; exists {
		return u, nil
	}
	return nil, errors.New("user not found")
}

var _ = ginkgo.Describe("AuthService", func() {
	var (
		service    *Service
		mockRepo   *mockUserRepository
		privateKey *rsa.PrivateKey
	)

	signToken := func(claims jwt.Claims) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		signed, err := token.SignedString(privateKey)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return signed
	}

	ginkgo.BeforeEach(func() {
		var err error
		privateKey, err = rsa.GenerateKey(rand.Reader, 2048)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		mockRepo = newMockUserRepository()
		service = NewService(&privateKey.PublicKey, mockRepo)
	})

	ginkgo.Describe("ValidateAccessToken", func() {
		ginkgo.Context("when the token is valid", func() {
			ginkgo.It("returns the claims", func() {
				tokenString := signToken(&Claims{
					UserID: "user-1",
					Email:  "wanjiku@mail.com",
					RegisteredClaims: jwt.RegisteredClaims{
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					},
				})

				claims, err := service.ValidateAccessToken(tokenString)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(claims.UserID).To(gomega.Equal("user-1"))
				gomega.Expect(claims.Email).To(gomega.Equal("wanjiku@mail.com"))
			})

			ginkgo.It("falls back to the subject when no user id claim is set", func() {
				tokenString := signToken(&Claims{
					RegisteredClaims: jwt.RegisteredClaims{
						Subject:   "user-1",
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					},
				})

				claims, err := service.ValidateAccessToken(tokenString)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(claims.UserID).To(gomega.Equal("user-1"))
			})
		})

		ginkgo.Context("when the token is invalid", func() {
			ginkgo.It("rejects an expired token", func() {
				tokenString := signToken(&Claims{
					UserID: "user-1",
					RegisteredClaims: jwt.RegisteredClaims{
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
					},
				})

				_, err := service.ValidateAccessToken(tokenString)
				gomega.Expect(err).To(gomega.Equal(internal.ErrTokenExpired))
			})

			ginkgo.It("rejects a token signed with a symmetric key", func() {
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: "user-1"})
				tokenString, err := token.SignedString([]byte("shared-secret"))
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				_, err = service.ValidateAccessToken(tokenString)
				gomega.Expect(err).To(gomega.HaveOccurred())
			})

			ginkgo.It("rejects a malformed token", func() {
				_, err := service.ValidateAccessToken("not-a-token")
				gomega.Expect(err).To(gomega.HaveOccurred())
			})

			ginkgo.It("rejects a token with neither user id nor subject", func() {
				tokenString := signToken(&Claims{
					RegisteredClaims: jwt.RegisteredClaims{
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					},
				})

				_, err := service.ValidateAccessToken(tokenString)
				gomega.Expect(err).To(gomega.HaveOccurred())
			})
		})
	})

	ginkgo.Describe("GetUser", func() {
		ginkgo.It("resolves an active user", func() {
			user, err := service.GetUser("user-1")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(user.ID).To(gomega.Equal("user-1"))
			gomega.Expect(user.Role).To(gomega.Equal("guest"))
		})

		ginkgo.It("rejects an inactive user", func() {
			_, err := service.GetUser("user-2")
			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("rejects an unknown user", func() {
			_, err := service.GetUser("nonexistent")
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})
})
