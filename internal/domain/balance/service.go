package balance

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (float64, error) {
	return s.repo.GetBalance(ctx, userID)
}

// Credit deposits funds and appends the DEPOSIT ledger row.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount float64, description string) (float64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	newBalance, err := s.repo.Credit(ctx, userID, amount, TransactionTypeDeposit, description)
	if err != nil {
		return 0, err
	}
	log.Info().Str("user_id", userID.String()).Float64("amount", amount).Float64("balance", newBalance).Msg("balance credited")
	return newBalance, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, userID, limit, offset)
}
