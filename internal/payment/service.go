package payment

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	errors "github.com/kodisha/payments/internal"
	"github.com/kodisha/payments/internal/core/datamodel/mpesa"
	"github.com/kodisha/payments/internal/core/datamodel/transaction"
	"github.com/kodisha/payments/internal/core/events"
	mpesaclient "github.com/kodisha/payments/internal/mpesa"
)

type PaymentService struct {
	repo     RepositoryAPI
	bookings BookingRepositoryAPI
	gateway  GatewayAPI
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewPaymentService(repo RepositoryAPI, bookings BookingRepositoryAPI, gateway GatewayAPI, eventBus *events.EventBus, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		repo:     repo,
		bookings: bookings,
		gateway:  gateway,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Initiate creates a pending ledger row and fires the STK push. The caller
// gets back the transaction id to poll; the payment outcome arrives later
// through the webhook. The transaction is never moved to completed here.
func (s *PaymentService) Initiate(ctx context.Context, requesterID string, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// At most one pending attempt per booking+payer; retries are allowed
	// once the previous attempt has resolved. This read is a fast path:
	// two concurrent initiates can both pass it, and the store's unique
	// pending index settles the race at Create below.
	if existing, err := s.repo.GetPendingForBooking(req.BookingID, requesterID); err == nil && existing != nil {
		s.logger.Warn("duplicate payment attempt while one is pending",
			"booking_id", req.BookingID,
			"user_id", requesterID,
			"pending_transaction_id", existing.ID)
		return nil, errors.NewConflictError("A payment for this booking is already in progress", errors.ErrCodeDuplicatePending)
	}

	description := req.Description
	if description == "" {
		description = defaultChargeDescription
	}

	txn := &transaction.Transaction{
		ID:          uuid.NewString(),
		UserID:      requesterID,
		BookingID:   req.BookingID,
		Amount:      int64(math.Round(req.Amount)),
		PhoneNumber: mpesaclient.NormalizePhone(req.PhoneNumber),
		Status:      transaction.StatusPending,
		Description: description,
	}

	if err := s.repo.Create(txn); err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeDuplicatePending {
			s.logger.Warn("concurrent payment attempt lost the create race",
				"booking_id", req.BookingID,
				"user_id", requesterID)
			return nil, appErr
		}
		s.logger.Error("failed to create transaction", "error", err, "booking_id", req.BookingID)
		return nil, errors.NewInternalError("Failed to create transaction", err)
	}

	s.logger.Info("initiating stk push",
		"transaction_id", txn.ID,
		"booking_id", req.BookingID,
		"amount", txn.Amount)

	result, err := s.gateway.InitiateSTKPush(ctx, mpesaclient.ChargeRequest{
		Amount:           req.Amount,
		PhoneNumber:      req.PhoneNumber,
		AccountReference: req.BookingID,
		Description:      description,
	})
	if err != nil {
		// local validation failure, no request left the process
		s.failTransaction(txn.ID, err.Error())
		return nil, err
	}

	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = result.ResponseDescription
		}
		if reason == "" {
			reason = "Failed to initiate payment"
		}

		s.logger.Warn("gateway rejected charge request",
			"transaction_id", txn.ID,
			"reason", reason)

		s.failTransaction(txn.ID, reason)
		return nil, errors.NewExternalError(reason, errors.ErrCodeGatewayRejected)
	}

	// A crash between gateway acceptance and this write leaves a pending
	// row with no checkout id; the reconciler expires those.
	if err := s.repo.SetCheckoutRequestID(txn.ID, result.CheckoutRequestID); err != nil {
		s.logger.Error("failed to persist checkout request id",
			"error", err,
			"transaction_id", txn.ID,
			"checkout_request_id", result.CheckoutRequestID)
	}

	s.logger.Info("stk push accepted",
		"transaction_id", txn.ID,
		"checkout_request_id", result.CheckoutRequestID)

	return &InitiatePaymentResponse{
		TransactionID:     txn.ID,
		CheckoutRequestID: result.CheckoutRequestID,
	}, nil
}

// GetStatus returns the transaction's current state for polling. A foreign
// transaction id yields the same not-found error as a missing one.
func (s *PaymentService) GetStatus(ctx context.Context, transactionID, requesterID string) (*PaymentStatusView, error) {
	txn, err := s.repo.GetByID(transactionID)
	if err != nil {
		return nil, errors.ErrTransactionNotFound
	}
	if txn.UserID != requesterID {
		return nil, errors.ErrTransactionNotFound
	}
	return ToStatusView(txn), nil
}

// History lists the requester's transactions, newest first.
func (s *PaymentService) History(ctx context.Context, requesterID string) ([]*PaymentStatusView, error) {
	txns, err := s.repo.ListByUser(requesterID, 100)
	if err != nil {
		s.logger.Error("failed to list transactions", "error", err, "user_id", requesterID)
		return nil, errors.NewInternalError("Failed to fetch payment history", err)
	}

	views := make([]*PaymentStatusView, 0, len(txns))
	for _, t := range txns {
		views = append(views, ToStatusView(t))
	}
	return views, nil
}

// ProcessCallback applies the provider's asynchronous charge verdict to the
// ledger. Unknown correlation ids and replays against terminal rows are
// dropped; the webhook handler acknowledges regardless of what happens here.
func (s *PaymentService) ProcessCallback(ctx context.Context, cb *mpesa.STKCallback) error {
	txn, err := s.repo.GetByCheckoutRequestID(cb.CheckoutRequestID)
	if err != nil {
		s.logger.Warn("callback for unknown checkout request id",
			"checkout_request_id", cb.CheckoutRequestID,
			"result_code", cb.ResultCode)
		return nil
	}

	if txn.IsTerminal() {
		s.logger.Info("callback replay against terminal transaction dropped",
			"transaction_id", txn.ID,
			"status", txn.Status,
			"checkout_request_id", cb.CheckoutRequestID)
		return nil
	}

	if cb.ResultCode == 0 {
		return s.completeTransaction(ctx, txn, cb.CallbackMetadata.StringValue(mpesa.MetadataReceiptNumber))
	}

	applied, err := s.repo.MarkFailed(txn.ID, cb.ResultDesc)
	if err != nil {
		s.logger.Error("failed to mark transaction failed",
			"error", err,
			"transaction_id", txn.ID)
		return errors.NewInternalError("failed to update transaction", err)
	}
	if !applied {
		// lost the race against a concurrent delivery
		return nil
	}

	s.logger.Info("transaction failed",
		"transaction_id", txn.ID,
		"result_code", cb.ResultCode,
		"reason", cb.ResultDesc)

	s.eventBus.Publish(ctx, events.NewPaymentFailedEvent(txn.ID, txn.BookingID, txn.UserID, txn.Amount, cb.ResultDesc))
	return nil
}

// completeTransaction performs the pending->completed transition and then
// marks the booking paid. A booking failure never rolls the transaction
// back: the money was received, so the discrepancy is flagged for
// reconciliation instead.
func (s *PaymentService) completeTransaction(ctx context.Context, txn *transaction.Transaction, mpesaRef string) error {
	now := time.Now().UTC()

	applied, err := s.repo.MarkCompleted(txn.ID, mpesaRef, now)
	if err != nil {
		s.logger.Error("failed to mark transaction completed",
			"error", err,
			"transaction_id", txn.ID)
		return errors.NewInternalError("failed to update transaction", err)
	}
	if !applied {
		return nil
	}

	s.logger.Info("transaction completed",
		"transaction_id", txn.ID,
		"booking_id", txn.BookingID,
		"mpesa_ref", mpesaRef)

	if err := s.bookings.MarkPaid(txn.BookingID, now); err != nil {
		s.logger.Error("booking update failed after completed payment",
			"error", err,
			"transaction_id", txn.ID,
			"booking_id", txn.BookingID)
		s.eventBus.Publish(ctx, events.NewBookingUpdateFailedEvent(txn.ID, txn.BookingID, err.Error()))
	}

	s.eventBus.Publish(ctx, events.NewPaymentCompletedEvent(txn.ID, txn.BookingID, txn.UserID, txn.Amount, mpesaRef))
	return nil
}

// failTransaction persists the failure reason onto the ledger row before
// the error is surfaced, so the caller has a durable record even if the
// HTTP response is lost.
func (s *PaymentService) failTransaction(id, reason string) {
	if _, err := s.repo.MarkFailed(id, reason); err != nil {
		s.logger.Error("failed to persist failure reason",
			"error", err,
			"transaction_id", id,
			"reason", reason)
	}
}
