package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/coin/entity"
	"github.com/ovaphlow/pitchfork/service-market-go/pkg/database"
)

// ErrInsufficientFunds is returned when a debit exceeds the locked balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrBalanceOverflow is returned when a credit would exceed the int64 range.
var ErrBalanceOverflow = errors.New("balance overflow")

// Repo is the ledger store. Balances live on users.coins and every change
// appends a coin_transactions row in the same transaction.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

// EnsureTable creates coin_transactions and its indexes when missing.
func (r *Repo) EnsureTable(ctx context.Context) error {
	var tblName sql.NullString
	if err := r.db.GetContext(ctx, &tblName, "SELECT to_regclass('public.coin_transactions')"); err != nil {
		return err
	}
	if !tblName.Valid {
		const ddl = `CREATE TABLE coin_transactions (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users (id),
			type TEXT NOT NULL CHECK (type IN ('credit', 'debit')),
			amount BIGINT NOT NULL CHECK (amount > 0),
			reason TEXT NOT NULL DEFAULT '',
			balance_after BIGINT NOT NULL CHECK (balance_after >= 0),
			ref_type TEXT,
			ref_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	for _, stmt := range ledgerUpgrades {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ledgerUpgrades bring a pre-ledger coin_transactions table up to date. Rows
// written before type existed are read as credits with an unknown (zero)
// balance_after.
var ledgerUpgrades = []string{
	`ALTER TABLE coin_transactions ADD COLUMN IF NOT EXISTS type TEXT NOT NULL DEFAULT 'credit'`,
	`ALTER TABLE coin_transactions ADD COLUMN IF NOT EXISTS reason TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE coin_transactions ADD COLUMN IF NOT EXISTS balance_after BIGINT NOT NULL DEFAULT 0`,
	`ALTER TABLE coin_transactions ADD COLUMN IF NOT EXISTS ref_type TEXT`,
	`ALTER TABLE coin_transactions ADD COLUMN IF NOT EXISTS ref_id UUID`,
	`CREATE INDEX IF NOT EXISTS idx_coin_transactions_user_created ON coin_transactions (user_id, created_at DESC)`,
}

// Mutation is a single credit or debit.
type Mutation struct {
	UserID  string
	Type    entity.TxType
	Amount  int64
	Reason  string
	RefType *string
	RefID   *string
}

// Apply locks the user row, moves the balance and appends the ledger row.
// It returns sql.ErrNoRows for an unknown user, ErrInsufficientFunds when a
// debit would go negative and ErrBalanceOverflow when a credit would wrap;
// nothing is written in those cases.
func (r *Repo) Apply(ctx context.Context, m Mutation, now time.Time) (*entity.Transaction, error) {
	var out *entity.Transaction
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		coins, err := lockBalance(ctx, tx, m.UserID)
		if err != nil {
			return err
		}
		next := coins + m.Amount
		if m.Type == entity.TxCredit && next < coins {
			return ErrBalanceOverflow
		}
		if m.Type == entity.TxDebit {
			if m.Amount > coins {
				return ErrInsufficientFunds
			}
			next = coins - m.Amount
		}
		if err := writeBalance(ctx, tx, m.UserID, next, now); err != nil {
			return err
		}
		t := entity.NewTransaction(m.UserID, m.Type, m.Amount, next, m.Reason, now)
		t.RefType, t.RefID = m.RefType, m.RefID
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetBalance overwrites the balance under the row lock. A changed balance is
// recorded as an admin_adjustment row for the delta; the row is nil when the
// balance did not change.
func (r *Repo) SetBalance(ctx context.Context, userID string, balance int64, now time.Time) (*entity.Transaction, error) {
	var out *entity.Transaction
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		coins, err := lockBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if coins == balance {
			return nil
		}
		if err := writeBalance(ctx, tx, userID, balance, now); err != nil {
			return err
		}
		typ, delta := entity.TxCredit, balance-coins
		if delta < 0 {
			typ, delta = entity.TxDebit, -delta
		}
		t := entity.NewTransaction(userID, typ, delta, balance, entity.ReasonAdminAdjustment, now)
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func lockBalance(ctx context.Context, tx *sqlx.Tx, userID string) (int64, error) {
	var coins int64
	err := tx.GetContext(ctx, &coins, `SELECT coins FROM users WHERE id = $1 FOR UPDATE`, userID)
	return coins, err
}

func writeBalance(ctx context.Context, tx *sqlx.Tx, userID string, coins int64, now time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET coins = $2, updated_at = $3 WHERE id = $1`, userID, coins, now)
	return err
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, t *entity.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	const q = `INSERT INTO coin_transactions (id, user_id, type, amount, reason, balance_after, ref_type, ref_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := tx.ExecContext(ctx, q, t.ID, t.UserID, string(t.Type), t.Amount, t.Reason, t.BalanceAfter, t.RefType, t.RefID, t.CreatedAt)
	return err
}

// Balance reads the current balance of userID.
func (r *Repo) Balance(ctx context.Context, userID string) (int64, error) {
	var coins int64
	err := r.db.GetContext(ctx, &coins, `SELECT coins FROM users WHERE id = $1`, userID)
	return coins, err
}

// Filter narrows a ledger listing. Zero values are ignored.
type Filter struct {
	UserID string
	Type   entity.TxType
	From   *time.Time
	To     *time.Time
	Limit  uint64
}

// List returns ledger rows newest first, joined with the owner's name.
func (r *Repo) List(ctx context.Context, f Filter) ([]entity.Transaction, error) {
	b := sq.Select("ct.id", "ct.user_id", "u.name AS user_name", "ct.type", "ct.amount", "ct.reason",
		"ct.balance_after", "ct.ref_type", "ct.ref_id", "ct.created_at").
		From("coin_transactions ct").
		LeftJoin("users u ON u.id = ct.user_id").
		OrderBy("ct.created_at DESC").
		PlaceholderFormat(sq.Dollar)
	if f.UserID != "" {
		b = b.Where(sq.Eq{"ct.user_id": f.UserID})
	}
	if f.Type != "" {
		b = b.Where(sq.Eq{"ct.type": string(f.Type)})
	}
	if f.From != nil {
		b = b.Where(sq.GtOrEq{"ct.created_at": *f.From})
	}
	if f.To != nil {
		b = b.Where(sq.Lt{"ct.created_at": *f.To})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	out := []entity.Transaction{}
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Balances lists balances ordered by name, optionally for one user type.
func (r *Repo) Balances(ctx context.Context, userType string) ([]entity.Balance, error) {
	b := sq.Select("id AS user_id", "name", "email", "coins AS balance").
		From("users").
		OrderBy("name ASC").
		PlaceholderFormat(sq.Dollar)
	if userType != "" {
		b = b.Where(sq.Eq{"user_type": userType})
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	out := []entity.Balance{}
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}
