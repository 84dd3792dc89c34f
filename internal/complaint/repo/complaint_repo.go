package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/complaint/entity"
	"github.com/ovaphlow/pitchfork/service-market-go/pkg/database"
)

const complaintColumns = `id, created_by, target_type, target_id, category, description,
	status, admin_remarks, created_at, updated_at`

var joinedColumns = []string{
	"c.id", "c.created_by",
	"u.name AS created_by_name", "u.email AS created_by_email", "u.user_type AS created_by_type",
	"c.target_type", "c.target_id", "c.category", "c.description",
	"c.status", "c.admin_remarks", "c.created_at", "c.updated_at",
}

// targetTables maps target types that reference a row to the table holding it.
var targetTables = map[entity.TargetType]string{
	entity.TargetField: "fields",
	entity.TargetOrder: "orders",
	entity.TargetUser:  "users",
}

// TransitionError reports a status change the workflow does not allow.
type TransitionError struct {
	From, To entity.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move complaint from %s to %s", e.From, e.To)
}

// Repo stores complaints.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

// EnsureTable creates the complaints table and indexes when missing.
func (r *Repo) EnsureTable(ctx context.Context) error {
	var tblName sql.NullString
	if err := r.db.GetContext(ctx, &tblName, "SELECT to_regclass('public.complaints')"); err != nil {
		return err
	}
	if !tblName.Valid {
		const ddl = `CREATE TABLE complaints (
			id UUID PRIMARY KEY,
			created_by UUID NOT NULL REFERENCES users (id),
			target_type TEXT NOT NULL CHECK (target_type IN
				('field', 'order', 'user', 'payment', 'delivery', 'service', 'quality', 'refund')),
			target_id UUID NOT NULL,
			category TEXT,
			description TEXT NOT NULL CHECK (length(btrim(description)) > 0),
			status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'in_review', 'resolved')),
			admin_remarks TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	for _, stmt := range []string{
		`ALTER TABLE complaints ADD COLUMN IF NOT EXISTS category TEXT`,
		`ALTER TABLE complaints ADD COLUMN IF NOT EXISTS admin_remarks TEXT`,
		`ALTER TABLE complaints ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()`,
		`CREATE INDEX IF NOT EXISTS idx_complaints_created_by ON complaints (created_by)`,
		`CREATE INDEX IF NOT EXISTS idx_complaints_status ON complaints (status)`,
	} {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// UserExists reports whether id names a user.
func (r *Repo) UserExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id)
	return ok, err
}

// TargetExists reports whether the row a complaint points at exists. Target
// types without a backing table always report false.
func (r *Repo) TargetExists(ctx context.Context, t entity.TargetType, id string) (bool, error) {
	table, ok := targetTables[t]
	if !ok {
		return false, nil
	}
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id)
	return exists, err
}

// Create inserts c in the open state and refreshes it from the stored row.
func (r *Repo) Create(ctx context.Context, c *entity.Complaint) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	const q = `INSERT INTO complaints (id, created_by, target_type, target_id, category, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'open', $7, $7)
		RETURNING ` + complaintColumns
	return r.db.GetContext(ctx, c, q, c.ID, c.CreatedBy, string(c.TargetType), c.TargetID, c.Category, c.Description, c.CreatedAt)
}

// Filter narrows List. OrderBy is one of created_at or updated_at.
type Filter struct {
	CreatedBy string
	Status    entity.Status
	OrderBy   string
}

func (r *Repo) selectJoined() sq.SelectBuilder {
	return sq.Select(joinedColumns...).
		From("complaints c").
		LeftJoin("users u ON u.id = c.created_by").
		PlaceholderFormat(sq.Dollar)
}

// List returns complaints newest first by f.OrderBy.
func (r *Repo) List(ctx context.Context, f Filter) ([]entity.Complaint, error) {
	order := "c.created_at DESC"
	if f.OrderBy == "updated_at" {
		order = "c.updated_at DESC"
	}
	b := r.selectJoined().OrderBy(order)
	if f.CreatedBy != "" {
		b = b.Where(sq.Eq{"c.created_by": f.CreatedBy})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"c.status": string(f.Status)})
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	out := []entity.Complaint{}
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one complaint with its creator, or sql.ErrNoRows.
func (r *Repo) Get(ctx context.Context, id string) (*entity.Complaint, error) {
	q, args, err := r.selectJoined().Where(sq.Eq{"c.id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var c entity.Complaint
	if err := r.db.GetContext(ctx, &c, q, args...); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateStatus moves the complaint to next under a row lock. Nil remarks
// keep the stored remarks. A disallowed move returns *TransitionError and
// leaves the row untouched.
func (r *Repo) UpdateStatus(ctx context.Context, id string, next entity.Status, remarks *string, now time.Time) (*entity.Complaint, error) {
	var out entity.Complaint
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var current entity.Status
		if err := tx.GetContext(ctx, &current, `SELECT status FROM complaints WHERE id = $1 FOR UPDATE`, id); err != nil {
			return err
		}
		if !entity.CanTransition(current, next) {
			return &TransitionError{From: current, To: next}
		}
		const upd = `UPDATE complaints SET status = $2, admin_remarks = COALESCE($3::text, admin_remarks), updated_at = $4
			WHERE id = $1 RETURNING ` + complaintColumns
		return tx.GetContext(ctx, &out, upd, id, string(next), remarks, now)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRemarks replaces admin_remarks without touching the status.
func (r *Repo) UpdateRemarks(ctx context.Context, id string, remarks *string, now time.Time) (*entity.Complaint, error) {
	var out entity.Complaint
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var locked string
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM complaints WHERE id = $1 FOR UPDATE`, id); err != nil {
			return err
		}
		const upd = `UPDATE complaints SET admin_remarks = $2, updated_at = $3 WHERE id = $1 RETURNING ` + complaintColumns
		return tx.GetContext(ctx, &out, upd, id, remarks, now)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
