package payout

import (
	"context"
	"time"

	"github.com/kodisha/payments/internal/auth"
	mpesatypes "github.com/kodisha/payments/internal/core/datamodel/mpesa"
	payoutdm "github.com/kodisha/payments/internal/core/datamodel/payout"
	userdm "github.com/kodisha/payments/internal/core/datamodel/user"
)

type RepositoryAPI interface {
	Create(p *payoutdm.Payout) error
	GetByID(id string) (*payoutdm.Payout, error)
	MarkCompleted(id, mpesaRef string, completedAt time.Time) (bool, error)
	MarkFailed(id, errorMessage string) (bool, error)
}

// UserRepositoryAPI resolves the host receiving the disbursement.
type UserRepositoryAPI interface {
	GetByID(id string) (*userdm.User, error)
}

type GatewayAPI interface {
	SendB2C(ctx context.Context, payeePhone string, amount float64, description string) (*mpesatypes.Result, error)
}

type ServiceAPI interface {
	SendPayout(ctx context.Context, caller *auth.User, req *SendPayoutRequest) (*PayoutView, error)
}
