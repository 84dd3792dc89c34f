package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TargetType is what a complaint is about.
type TargetType string

const (
	TargetField    TargetType = "field"
	TargetOrder    TargetType = "order"
	TargetUser     TargetType = "user"
	TargetPayment  TargetType = "payment"
	TargetDelivery TargetType = "delivery"
	TargetService  TargetType = "service"
	TargetQuality  TargetType = "quality"
	TargetRefund   TargetType = "refund"
)

// TargetTypes lists every accepted target type.
var TargetTypes = []TargetType{
	TargetField, TargetOrder, TargetUser, TargetPayment,
	TargetDelivery, TargetService, TargetQuality, TargetRefund,
}

// ParseTargetType is case-insensitive.
func ParseTargetType(s string) (TargetType, bool) {
	t := TargetType(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range TargetTypes {
		if v == t {
			return t, true
		}
	}
	return "", false
}

// RequiresTarget reports whether target_id must reference an existing row.
func (t TargetType) RequiresTarget() bool {
	return t == TargetField || t == TargetOrder || t == TargetUser
}

// NoTarget is stored as target_id for general complaints.
var NoTarget = uuid.Nil.String()

// Status is the workflow state.
type Status string

const (
	StatusOpen     Status = "open"
	StatusInReview Status = "in_review"
	StatusResolved Status = "resolved"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusOpen, StatusInReview, StatusResolved:
		return st, true
	}
	return "", false
}

var transitions = map[Status][]Status{
	StatusOpen:     {StatusInReview, StatusResolved},
	StatusInReview: {StatusResolved},
}

// CanTransition reports whether from -> to is allowed. Same-state moves and
// anything out of resolved are rejected.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Complaint is a complaints row. The CreatedBy* fields are filled by
// listings that join the creator.
type Complaint struct {
	ID             string     `json:"id" db:"id"`
	CreatedBy      string     `json:"created_by" db:"created_by"`
	CreatedByName  *string    `json:"created_by_name,omitempty" db:"created_by_name"`
	CreatedByEmail *string    `json:"created_by_email,omitempty" db:"created_by_email"`
	CreatedByType  *string    `json:"created_by_type,omitempty" db:"created_by_type"`
	TargetType     TargetType `json:"target_type" db:"target_type"`
	TargetID       string     `json:"target_id" db:"target_id"`
	Category       *string    `json:"category" db:"category"`
	Description    string     `json:"description" db:"description"`
	Status         Status     `json:"status" db:"status"`
	AdminRemarks   *string    `json:"admin_remarks" db:"admin_remarks"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
