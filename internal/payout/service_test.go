package payout_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/kodisha/payments/internal"
	"github.com/kodisha/payments/internal/auth"
	mpesatypes "github.com/kodisha/payments/internal/core/datamodel/mpesa"
	payoutdm "github.com/kodisha/payments/internal/core/datamodel/payout"
	userdm "github.com/kodisha/payments/internal/core/datamodel/user"
	"github.com/kodisha/payments/internal/core/events"
	payoutPkg "github.com/kodisha/payments/internal/payout"
)

func TestPayout(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Payout Suite")
}

// Mock payout repository
type mockPayoutRepository struct {
	payouts     map[string]*payoutdm.Payout
	createError error
}

func newMockPayoutRepository() *mockPayoutRepository {
	return &mockPayoutRepository{payouts: make(map[string]*payoutdm.Payout)}
}

func (m *mockPayoutRepository) Create(p *payoutdm.Payout) error {
	if m.createError != nil {
		return m.createError
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.payouts[p.ID] = p
	return nil
}

func (m *mockPayoutRepository) GetByID(id string) (*payoutdm.Payout, error) {
	p, exists := m.payouts[id]
	if !exists {
		return nil, errors.New("payout not found")
	}
	return p, nil
}

func (m *mockPayoutRepository) MarkCompleted(id, mpesaRef string, completedAt time.Time) (bool, error) {
	p, exists := m.payouts[id]
	if !exists || p.Status != payoutdm.StatusPending {
		return false, nil
	}
	p.Status = payoutdm.StatusCompleted
	if mpesaRef != "" {
		p.MpesaRef = &mpesaRef
	}
	p.CompletedAt = &completedAt
	return true, nil
}

func (m *mockPayoutRepository) MarkFailed(id, errorMessage string) (bool, error) {
	p, exists := m.payouts[id]
	if !exists || p.Status != payoutdm.StatusPending {
		return false, nil
	}
	p.Status = payoutdm.StatusFailed
	p.ErrorMessage = &errorMessage
	return true, nil
}

// Mock user repository
type mockUserRepository struct {
	users map[string]*userdm.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*userdm.User)}
}

func (m *mockUserRepository) GetByID(id string) (*userdm.User, error) {
	u, exists := m.users[id]
	if !exists {
		return nil, errors.New("user not found")
	}
	return u, nil
}

// Mock B2C gateway
type mockB2CGateway struct {
	result      *mpesatypes.Result
	err         error
	lastPhone   string
	lastAmount  float64
	lastRemark  string
	timesCalled int
}

func (m *mockB2CGateway) SendB2C(ctx context.Context, payeePhone string, amount float64, description string) (*mpesatypes.Result, error) {
	m.timesCalled++
	m.lastPhone = payeePhone
	m.lastAmount = amount
	m.lastRemark = description
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

var _ = Describe("PayoutService", func() {
	var (
		service   *payoutPkg.PayoutService
		mockRepo  *mockPayoutRepository
		mockUsers *mockUserRepository
		gateway   *mockB2CGateway
		ctx       context.Context

		adminCaller *auth.User
		hostCaller  *auth.User
	)

	strPtr := func(s string) *string { return &s }

	BeforeEach(func() {
		ctx = context.Background()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		mockRepo = newMockPayoutRepository()
		mockUsers = newMockUserRepository()
		gateway = &mockB2CGateway{
			result: &mpesatypes.Result{
				Success:        true,
				ConversationID: "AG_20260829_0001",
				ResponseCode:   "0",
			},
		}

		mockUsers.users["host-1"] = &userdm.User{
			ID:          "host-1",
			Email:       "otieno@mail.com",
			Role:        "host",
			PhoneNumber: strPtr("0722000111"),
			MpesaPhone:  strPtr("254733999888"),
			IsActive:    true,
		}

		adminCaller = &auth.User{ID: "admin-1", Role: "admin"}
		hostCaller = &auth.User{ID: "host-1", Role: "host"}

		eventBus := events.NewEventBus(logger)
		service = payoutPkg.NewPayoutService(mockRepo, mockUsers, gateway, eventBus, logger)
	})

	validRequest := func() *payoutPkg.SendPayoutRequest {
		return &payoutPkg.SendPayoutRequest{
			HostID: "host-1",
			Amount: 2500,
		}
	}

	Context("when an admin pays out a host", func() {
		It("disburses to the host's M-Pesa phone and completes the payout", func() {
			view, err := service.SendPayout(ctx, adminCaller, validRequest())

			Expect(err).ToNot(HaveOccurred())
			Expect(view.Status).To(Equal(payoutdm.StatusCompleted))
			Expect(view.MpesaRef).To(Equal("AG_20260829_0001"))
			Expect(gateway.lastPhone).To(Equal("254733999888"))
			Expect(gateway.lastAmount).To(Equal(2500.0))
			Expect(gateway.lastRemark).To(Equal("Kodisha Earnings - Earnings Payout"))
		})

		It("prefixes a custom description in the B2C remark", func() {
			req := validRequest()
			req.Description = "March earnings"

			_, err := service.SendPayout(ctx, adminCaller, req)

			Expect(err).ToNot(HaveOccurred())
			Expect(gateway.lastRemark).To(Equal("Kodisha Earnings - March earnings"))
		})

		It("falls back to the profile phone when no M-Pesa phone is set", func() {
			mockUsers.users["host-1"].MpesaPhone = nil

			_, err := service.SendPayout(ctx, adminCaller, validRequest())

			Expect(err).ToNot(HaveOccurred())
			Expect(gateway.lastPhone).To(Equal("0722000111"))
		})
	})

	Context("when a host pays out their own earnings", func() {
		It("allows the payout", func() {
			view, err := service.SendPayout(ctx, hostCaller, validRequest())

			Expect(err).ToNot(HaveOccurred())
			Expect(view.Status).To(Equal(payoutdm.StatusCompleted))
		})
	})

	Context("when a caller targets another host", func() {
		It("denies the payout without calling the gateway", func() {
			caller := &auth.User{ID: "host-2", Role: "host"}

			_, err := service.SendPayout(ctx, caller, validRequest())

			Expect(err).To(Equal(apperrors.ErrUnauthorizedAccess))
			Expect(gateway.timesCalled).To(Equal(0))
		})
	})

	Context("when the host cannot receive funds", func() {
		It("rejects an unknown host", func() {
			req := validRequest()
			req.HostID = "nonexistent"

			_, err := service.SendPayout(ctx, adminCaller, req)

			Expect(err).To(Equal(apperrors.ErrHostNotFound))
			Expect(gateway.timesCalled).To(Equal(0))
		})

		It("rejects a host with no phone on file", func() {
			mockUsers.users["host-1"].MpesaPhone = nil
			mockUsers.users["host-1"].PhoneNumber = nil

			_, err := service.SendPayout(ctx, adminCaller, validRequest())

			Expect(err).To(Equal(apperrors.ErrHostPhoneMissing))
			Expect(gateway.timesCalled).To(Equal(0))
		})
	})

	Context("when the gateway rejects the disbursement", func() {
		It("fails the payout with the gateway's reason", func() {
			gateway.result = &mpesatypes.Result{
				Success: false,
				Error:   "Insufficient utility account balance",
			}

			_, err := service.SendPayout(ctx, adminCaller, validRequest())
			Expect(err).To(HaveOccurred())

			var failed *payoutdm.Payout
			for _, p := range mockRepo.payouts {
				failed = p
			}
			Expect(failed).ToNot(BeNil())
			Expect(failed.Status).To(Equal(payoutdm.StatusFailed))
			Expect(*failed.ErrorMessage).To(Equal("Insufficient utility account balance"))
		})
	})

	Context("when validation fails", func() {
		It("rejects a missing host id", func() {
			req := validRequest()
			req.HostID = ""

			_, err := service.SendPayout(ctx, adminCaller, req)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a non-positive amount", func() {
			req := validRequest()
			req.Amount = 0

			_, err := service.SendPayout(ctx, adminCaller, req)
			Expect(err).To(HaveOccurred())
		})
	})
})
