package payment

import (
	"context"
	"time"

	mpesatypes "github.com/kodisha/payments/internal/core/datamodel/mpesa"
	"github.com/kodisha/payments/internal/core/datamodel/transaction"
	"github.com/kodisha/payments/internal/mpesa"
)

// RepositoryAPI is the transaction ledger. MarkCompleted and MarkFailed are
// conditional on the row still being pending and report whether the
// transition was applied, which is what makes duplicate callbacks no-ops.
type RepositoryAPI interface {
	Create(t *transaction.Transaction) error
	GetByID(id string) (*transaction.Transaction, error)
	GetByCheckoutRequestID(checkoutRequestID string) (*transaction.Transaction, error)
	GetPendingForBooking(bookingID, userID string) (*transaction.Transaction, error)
	ListByUser(userID string, limit int) ([]*transaction.Transaction, error)
	ListPendingOlderThan(age time.Duration, limit int) ([]*transaction.Transaction, error)
	SetCheckoutRequestID(id, checkoutRequestID string) error
	MarkCompleted(id, mpesaRef string, completedAt time.Time) (bool, error)
	MarkFailed(id, errorMessage string) (bool, error)
}

// BookingRepositoryAPI is the boundary to the listings subsystem: the only
// booking fields this service touches are payment_status and paid_at.
type BookingRepositoryAPI interface {
	MarkPaid(bookingID string, paidAt time.Time) error
}

type GatewayAPI interface {
	InitiateSTKPush(ctx context.Context, req mpesa.ChargeRequest) (*mpesatypes.Result, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesatypes.Result, error)
}

type ServiceAPI interface {
	Initiate(ctx context.Context, requesterID string, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error)
	GetStatus(ctx context.Context, transactionID, requesterID string) (*PaymentStatusView, error)
	History(ctx context.Context, requesterID string) ([]*PaymentStatusView, error)
	ProcessCallback(ctx context.Context, cb *mpesatypes.STKCallback) error
}
