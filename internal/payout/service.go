package payout

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	errors "github.com/kodisha/payments/internal"
	"github.com/kodisha/payments/internal/auth"
	payoutdm "github.com/kodisha/payments/internal/core/datamodel/payout"
	"github.com/kodisha/payments/internal/core/events"
)

type PayoutService struct {
	repo     RepositoryAPI
	users    UserRepositoryAPI
	gateway  GatewayAPI
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewPayoutService(repo RepositoryAPI, users UserRepositoryAPI, gateway GatewayAPI, eventBus *events.EventBus, logger *slog.Logger) *PayoutService {
	return &PayoutService{
		repo:     repo,
		users:    users,
		gateway:  gateway,
		eventBus: eventBus,
		logger:   logger,
	}
}

// SendPayout disburses host earnings over B2C. Admins can pay out any
// host; hosts can only trigger their own payout. Unlike charges, the
// payout resolves synchronously on the gateway's accept or reject.
func (s *PayoutService) SendPayout(ctx context.Context, caller *auth.User, req *SendPayoutRequest) (*PayoutView, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if !caller.IsAdmin() && caller.ID != req.HostID {
		s.logger.Warn("payout attempt for another host denied",
			"caller_id", caller.ID,
			"host_id", req.HostID)
		return nil, errors.ErrUnauthorizedAccess
	}

	host, err := s.users.GetByID(req.HostID)
	if err != nil {
		return nil, errors.ErrHostNotFound
	}

	phone := host.DisbursementPhone()
	if phone == "" {
		return nil, errors.ErrHostPhoneMissing
	}

	description := req.Description
	if description == "" {
		description = defaultPayoutDescription
	}

	p := &payoutdm.Payout{
		ID:          uuid.NewString(),
		HostID:      req.HostID,
		Amount:      int64(math.Round(req.Amount)),
		Status:      payoutdm.StatusPending,
		Description: description,
	}

	if err := s.repo.Create(p); err != nil {
		s.logger.Error("failed to create payout", "error", err, "host_id", req.HostID)
		return nil, errors.NewInternalError("Failed to create payout", err)
	}

	s.logger.Info("sending b2c payout",
		"payout_id", p.ID,
		"host_id", req.HostID,
		"amount", p.Amount)

	result, err := s.gateway.SendB2C(ctx, phone, req.Amount, "Kodisha Earnings - "+description)
	if err != nil {
		s.failPayout(p.ID, err.Error())
		return nil, err
	}

	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = result.ResponseDescription
		}
		if reason == "" {
			reason = "Failed to send payout"
		}

		s.logger.Warn("gateway rejected payout",
			"payout_id", p.ID,
			"reason", reason)

		s.failPayout(p.ID, reason)
		return nil, errors.NewExternalError(reason, errors.ErrCodeGatewayRejected)
	}

	now := time.Now().UTC()
	if _, err := s.repo.MarkCompleted(p.ID, result.ConversationID, now); err != nil {
		s.logger.Error("failed to mark payout completed",
			"error", err,
			"payout_id", p.ID,
			"conversation_id", result.ConversationID)
		return nil, errors.NewInternalError("failed to update payout", err)
	}

	s.logger.Info("payout sent",
		"payout_id", p.ID,
		"host_id", req.HostID,
		"conversation_id", result.ConversationID)

	s.eventBus.Publish(ctx, events.NewPayoutSentEvent(p.ID, p.HostID, p.Amount))

	done, err := s.repo.GetByID(p.ID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load payout", err)
	}
	return ToPayoutView(done), nil
}

func (s *PayoutService) failPayout(id, reason string) {
	if _, err := s.repo.MarkFailed(id, reason); err != nil {
		s.logger.Error("failed to persist payout failure reason",
			"error", err,
			"payout_id", id,
			"reason", reason)
	}
}
