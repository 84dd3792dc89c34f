package entity

import "time"

// TxType is the direction of a ledger row.
type TxType string

const (
	TxCredit TxType = "credit"
	TxDebit  TxType = "debit"
)

// ParseTxType accepts "credit" or "debit".
func ParseTxType(s string) (TxType, bool) {
	switch t := TxType(s); t {
	case TxCredit, TxDebit:
		return t, true
	}
	return "", false
}

// Ledger reasons written by the service itself.
const (
	ReasonManualCredit    = "manual_credit"
	ReasonManualDebit     = "manual_debit"
	ReasonAdminAdjustment = "admin_adjustment"
)

// Transaction is one append-only ledger row.
type Transaction struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	UserName     *string   `json:"user_name,omitempty" db:"user_name"`
	Type         TxType    `json:"type" db:"type"`
	Amount       int64     `json:"amount" db:"amount"`
	Reason       string    `json:"reason" db:"reason"`
	BalanceAfter int64     `json:"balance_after" db:"balance_after"`
	RefType      *string   `json:"ref_type,omitempty" db:"ref_type"`
	RefID        *string   `json:"ref_id,omitempty" db:"ref_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// NewTransaction builds a row for userID; the id is assigned on insert.
func NewTransaction(userID string, typ TxType, amount, balanceAfter int64, reason string, createdAt time.Time) *Transaction {
	return &Transaction{UserID: userID, Type: typ, Amount: amount, Reason: reason, BalanceAfter: balanceAfter, CreatedAt: createdAt}
}

// Balance is a user's current coin balance.
type Balance struct {
	UserID  string `json:"user_id" db:"user_id"`
	Name    string `json:"name" db:"name"`
	Email   string `json:"email" db:"email"`
	Balance int64  `json:"balance" db:"balance"`
}
