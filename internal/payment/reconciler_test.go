package payment_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	mpesatypes "github.com/kodisha/payments/internal/core/datamodel/mpesa"
	"github.com/kodisha/payments/internal/core/datamodel/transaction"
	"github.com/kodisha/payments/internal/core/events"
	paymentPkg "github.com/kodisha/payments/internal/payment"
)

var _ = Describe("Reconciler", func() {
	var (
		service      *paymentPkg.PaymentService
		mockRepo     *mockTransactionRepository
		mockBookings *mockBookingRepository
		gateway      *mockGateway
		reconciler   *paymentPkg.Reconciler
		logger       *slog.Logger
	)

	newReconciler := func(expireAfter time.Duration) *paymentPkg.Reconciler {
		return paymentPkg.NewReconciler(service, paymentPkg.ReconcilerConfig{
			Interval:    time.Hour, // one immediate sweep per test
			PendingAge:  time.Minute,
			ExpireAfter: expireAfter,
			MaxWorkers:  2,
			BatchSize:   10,
		}, logger)
	}

	// stalePending plants a pending transaction old enough for the sweep.
	stalePending := func(id, checkoutID string, age time.Duration) {
		txn := &transaction.Transaction{
			ID:          id,
			UserID:      "user-1",
			BookingID:   "booking-1",
			Amount:      1500,
			PhoneNumber: "254712345678",
			Status:      transaction.StatusPending,
		}
		if checkoutID != "" {
			txn.CheckoutRequestID = &checkoutID
		}
		Expect(mockRepo.Create(txn)).To(Succeed())
		txn.CreatedAt = time.Now().Add(-age)
	}

	getStatus := func(id string) func() string {
		return func() string {
			txn, err := mockRepo.GetByID(id)
			Expect(err).ToNot(HaveOccurred())
			return txn.Status
		}
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		mockRepo = newMockTransactionRepository()
		mockBookings = newMockBookingRepository()
		gateway = &mockGateway{}
		eventBus := events.NewEventBus(logger)
		service = paymentPkg.NewPaymentService(mockRepo, mockBookings, gateway, eventBus, logger)
	})

	AfterEach(func() {
		if reconciler != nil {
			reconciler.Shutdown()
			reconciler = nil
		}
	})

	Context("when the provider reports the payment completed", func() {
		It("completes the transaction and marks the booking paid", func() {
			stalePending("txn-1", "ws_CO_1", 10*time.Minute)
			gateway.queryResult = &mpesatypes.Result{
				Success:      true,
				ResponseCode: "0",
				ResultCode:   "0",
			}

			reconciler = newReconciler(24 * time.Hour)
			reconciler.Start()

			Eventually(getStatus("txn-1"), time.Second, 10*time.Millisecond).
				Should(Equal(transaction.StatusCompleted))

			_, paid := mockBookings.paidAt("booking-1")
			Expect(paid).To(BeTrue())
		})
	})

	Context("when the provider reports a definitive failure", func() {
		It("fails the transaction with the provider's description", func() {
			stalePending("txn-1", "ws_CO_1", 10*time.Minute)
			gateway.queryResult = &mpesatypes.Result{
				Success:             false,
				ResponseCode:        "0",
				ResultCode:          "1032",
				ResponseDescription: "Request cancelled by user",
			}

			reconciler = newReconciler(24 * time.Hour)
			reconciler.Start()

			Eventually(getStatus("txn-1"), time.Second, 10*time.Millisecond).
				Should(Equal(transaction.StatusFailed))

			txn, _ := mockRepo.GetByID("txn-1")
			Expect(*txn.ErrorMessage).To(Equal("Request cancelled by user"))
		})
	})

	Context("when the provider has no verdict yet", func() {
		It("leaves a young transaction pending", func() {
			stalePending("txn-1", "ws_CO_1", 10*time.Minute)
			gateway.queryResult = &mpesatypes.Result{
				Success:      false,
				ResponseCode: "0",
			}

			reconciler = newReconciler(24 * time.Hour)
			reconciler.Start()

			Consistently(getStatus("txn-1"), 200*time.Millisecond, 20*time.Millisecond).
				Should(Equal(transaction.StatusPending))
		})

		It("expires a transaction past the hard deadline", func() {
			stalePending("txn-1", "ws_CO_1", time.Hour)
			gateway.queryResult = &mpesatypes.Result{
				Success:      false,
				ResponseCode: "0",
			}

			reconciler = newReconciler(30 * time.Minute)
			reconciler.Start()

			Eventually(getStatus("txn-1"), time.Second, 10*time.Millisecond).
				Should(Equal(transaction.StatusFailed))

			txn, _ := mockRepo.GetByID("txn-1")
			Expect(*txn.ErrorMessage).To(Equal("Payment confirmation timed out"))
		})
	})

	Context("when the transaction never got a checkout id", func() {
		It("expires it once past the hard deadline without querying", func() {
			stalePending("txn-1", "", time.Hour)
			gateway.queryError = context.DeadlineExceeded // query must not happen

			reconciler = newReconciler(30 * time.Minute)
			reconciler.Start()

			Eventually(getStatus("txn-1"), time.Second, 10*time.Millisecond).
				Should(Equal(transaction.StatusFailed))

			txn, _ := mockRepo.GetByID("txn-1")
			Expect(*txn.ErrorMessage).To(Equal("Payment initiation was never confirmed"))
		})

		It("leaves it pending inside the deadline", func() {
			stalePending("txn-1", "", 10*time.Minute)

			reconciler = newReconciler(24 * time.Hour)
			reconciler.Start()

			Consistently(getStatus("txn-1"), 200*time.Millisecond, 20*time.Millisecond).
				Should(Equal(transaction.StatusPending))
		})
	})

	Context("when the status query itself fails", func() {
		It("leaves the transaction pending for the next sweep", func() {
			stalePending("txn-1", "ws_CO_1", 10*time.Minute)
			gateway.queryError = context.DeadlineExceeded

			reconciler = newReconciler(24 * time.Hour)
			reconciler.Start()

			Consistently(getStatus("txn-1"), 200*time.Millisecond, 20*time.Millisecond).
				Should(Equal(transaction.StatusPending))
		})
	})
})
