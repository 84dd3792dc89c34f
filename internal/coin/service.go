package coin

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/coin/entity"
	coinrepo "github.com/ovaphlow/pitchfork/service-market-go/internal/coin/repo"
)

const (
	// MaxListLimit caps ledger listings.
	MaxListLimit = 1000
	// maxAmount keeps amounts exactly representable as float64 JSON numbers.
	maxAmount = 1 << 53
)

var (
	ErrUserNotFound      = apperr.New(apperr.KindNotFound, "user_not_found", "user not found")
	ErrInsufficientFunds = apperr.InsufficientFunds("insufficient coins")
	ErrInvalidAmount     = apperr.New(apperr.KindValidation, "invalid_amount", "amount must be a positive integer")
	ErrInvalidBalance    = apperr.New(apperr.KindValidation, "invalid_amount", "coins must be a non-negative integer")
	errInvalidUserID     = apperr.Validation("invalid user id")
)

// Service is the coin ledger.
type Service struct {
	repo *coinrepo.Repo
	now  func() time.Time
}

func NewService(db *sqlx.DB) *Service {
	return &Service{repo: coinrepo.NewRepo(db), now: time.Now}
}

// MutationInput is the body of a credit or debit. Amount is decoded as a JSON
// number and must hold a positive integer.
type MutationInput struct {
	Amount  float64 `json:"amount"`
	Reason  string  `json:"reason"`
	RefType *string `json:"ref_type"`
	RefID   *string `json:"ref_id"`
}

// Result is the balance after a mutation and the ledger row written for it.
type Result struct {
	Coins       int64               `json:"coins"`
	Transaction *entity.Transaction `json:"transaction,omitempty"`
}

// Credit adds in.Amount to the balance of userID.
func (s *Service) Credit(ctx context.Context, userID string, in MutationInput) (*Result, error) {
	return s.apply(ctx, userID, entity.TxCredit, in)
}

// Debit removes in.Amount from the balance of userID, failing with
// ErrInsufficientFunds if the balance is too low.
func (s *Service) Debit(ctx context.Context, userID string, in MutationInput) (*Result, error) {
	return s.apply(ctx, userID, entity.TxDebit, in)
}

func (s *Service) apply(ctx context.Context, userID string, typ entity.TxType, in MutationInput) (*Result, error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	amount, ok := wholeNumber(in.Amount)
	if !ok || amount == 0 {
		return nil, ErrInvalidAmount
	}
	m := coinrepo.Mutation{UserID: userID, Type: typ, Amount: amount, Reason: strings.TrimSpace(in.Reason)}
	if m.Reason == "" {
		m.Reason = entity.ReasonManualCredit
		if typ == entity.TxDebit {
			m.Reason = entity.ReasonManualDebit
		}
	}
	if in.RefType != nil && strings.TrimSpace(*in.RefType) != "" {
		rt := strings.TrimSpace(*in.RefType)
		m.RefType = &rt
	}
	if in.RefID != nil && *in.RefID != "" {
		if _, err := uuid.Parse(*in.RefID); err != nil {
			return nil, apperr.Validation("ref_id must be a UUID")
		}
		m.RefID = in.RefID
	}

	t, err := s.repo.Apply(ctx, m, s.now().UTC())
	if err != nil {
		return nil, mapErr(err, string(typ))
	}
	return &Result{Coins: t.BalanceAfter, Transaction: t}, nil
}

// SetBalance overwrites the balance of userID.
func (s *Service) SetBalance(ctx context.Context, userID string, coins float64) (*Result, error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	balance, ok := wholeNumber(coins)
	if !ok {
		return nil, ErrInvalidBalance
	}
	t, err := s.repo.SetBalance(ctx, userID, balance, s.now().UTC())
	if err != nil {
		return nil, mapErr(err, "set balance")
	}
	return &Result{Coins: balance, Transaction: t}, nil
}

// GetBalance returns the current balance of userID.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	if err := checkUserID(userID); err != nil {
		return 0, err
	}
	coins, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return 0, mapErr(err, "get balance")
	}
	return coins, nil
}

// ListFilter selects ledger rows; Limit 0 means MaxListLimit.
type ListFilter struct {
	UserID string
	Type   string
	From   *time.Time
	To     *time.Time
	Limit  int
}

// ListTransactions returns ledger rows newest first.
func (s *Service) ListTransactions(ctx context.Context, f ListFilter) ([]entity.Transaction, error) {
	rf := coinrepo.Filter{UserID: f.UserID, From: f.From, To: f.To, Limit: MaxListLimit}
	if f.UserID != "" {
		if err := checkUserID(f.UserID); err != nil {
			return nil, err
		}
	}
	if f.Type != "" {
		t, ok := entity.ParseTxType(f.Type)
		if !ok {
			return nil, apperr.Validation("type must be credit or debit")
		}
		rf.Type = t
	}
	if f.Limit < 0 {
		return nil, apperr.Validation("limit must be positive")
	}
	if f.Limit > 0 && f.Limit < MaxListLimit {
		rf.Limit = uint64(f.Limit)
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, apperr.Validation("from must be before to")
	}
	out, err := s.repo.List(ctx, rf)
	if err != nil {
		return nil, apperr.Internal(err, "list transactions")
	}
	return out, nil
}

// ListBalances returns balances ordered by name, optionally for one user type.
func (s *Service) ListBalances(ctx context.Context, userType string) ([]entity.Balance, error) {
	switch userType {
	case "", "farmer", "buyer", "admin":
	default:
		return nil, apperr.Validation("user_type must be one of farmer, buyer, admin")
	}
	out, err := s.repo.Balances(ctx, userType)
	if err != nil {
		return nil, apperr.Internal(err, "list balances")
	}
	return out, nil
}

// EnsureSchema creates the ledger table.
func (s *Service) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureTable(ctx)
}

func checkUserID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errInvalidUserID
	}
	return nil
}

// wholeNumber converts a non-negative integral float to int64.
func wholeNumber(v float64) (int64, bool) {
	if math.IsNaN(v) || v < 0 || v > maxAmount || v != math.Trunc(v) {
		return 0, false
	}
	return int64(v), true
}

func mapErr(err error, op string) error {
	switch {
	case errors.Is(err, coinrepo.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, coinrepo.ErrBalanceOverflow):
		return ErrInvalidAmount
	case apperr.KindOf(apperr.FromDB(err, op)) == apperr.KindNotFound:
		return ErrUserNotFound
	}
	return apperr.FromDB(err, op)
}
