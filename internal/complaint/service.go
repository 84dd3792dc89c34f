package complaint

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/complaint/entity"
	complaintrepo "github.com/ovaphlow/pitchfork/service-market-go/internal/complaint/repo"
	userentity "github.com/ovaphlow/pitchfork/service-market-go/internal/user/entity"
)

var (
	ErrComplaintNotFound = apperr.New(apperr.KindNotFound, "complaint_not_found", "complaint not found")
	ErrCreatorNotFound   = apperr.New(apperr.KindNotFound, "user_not_found", "user not found")
	errTargetTypes       = apperr.Validation("target_type must be one of field, order, user, payment, delivery, service, quality, refund")
	errStatus            = apperr.Validation("status must be one of open, in_review, resolved")
)

// Service runs the complaint workflow.
type Service struct {
	repo *complaintrepo.Repo
	now  func() time.Time
}

func NewService(db *sqlx.DB) *Service {
	return &Service{repo: complaintrepo.NewRepo(db), now: time.Now}
}

// CreateInput is the complaint submission payload.
type CreateInput struct {
	CreatedBy   string  `json:"created_by"`
	TargetType  string  `json:"target_type"`
	TargetID    *string `json:"target_id"`
	Category    *string `json:"category"`
	Description string  `json:"description"`
}

// Create files a complaint for actor. created_by defaults to the actor; only
// admins may file on behalf of another user.
func (s *Service) Create(ctx context.Context, actor *userentity.User, in CreateInput) (*entity.Complaint, error) {
	createdBy := strings.TrimSpace(in.CreatedBy)
	if createdBy == "" {
		createdBy = actor.ID
	}
	if createdBy != actor.ID && !actor.HasRole(string(userentity.UserTypeAdmin)) {
		return nil, apperr.Forbidden("complaints can only be filed as yourself")
	}
	if strings.TrimSpace(in.TargetType) == "" {
		return nil, apperr.Validation("target_type is required")
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, apperr.Validation("description is required")
	}
	targetType, ok := entity.ParseTargetType(in.TargetType)
	if !ok {
		return nil, errTargetTypes
	}
	if _, err := uuid.Parse(createdBy); err != nil {
		return nil, apperr.Validation("created_by must be a UUID")
	}

	exists, err := s.repo.UserExists(ctx, createdBy)
	if err != nil {
		return nil, apperr.Internal(err, "check creator")
	}
	if !exists {
		return nil, ErrCreatorNotFound
	}

	targetID, err := s.resolveTarget(ctx, targetType, in.TargetID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &entity.Complaint{
		CreatedBy:   createdBy,
		TargetType:  targetType,
		TargetID:    targetID,
		Description: description,
		Status:      entity.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Category != nil {
		if cat := strings.TrimSpace(*in.Category); cat != "" {
			c.Category = &cat
		}
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, apperr.FromDB(err, "create complaint")
	}
	return c, nil
}

// resolveTarget validates target_id for targetType and returns the value to store.
func (s *Service) resolveTarget(ctx context.Context, targetType entity.TargetType, raw *string) (string, error) {
	id := ""
	if raw != nil {
		id = strings.TrimSpace(*raw)
	}
	if id == "" {
		if targetType.RequiresTarget() {
			return "", apperr.Validation("target_id is required for target_type " + string(targetType))
		}
		return entity.NoTarget, nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", apperr.Validation("target_id must be a UUID")
	}
	id = parsed.String()
	if !targetType.RequiresTarget() {
		return id, nil
	}
	exists, err := s.repo.TargetExists(ctx, targetType, id)
	if err != nil {
		return "", apperr.Internal(err, "check complaint target")
	}
	if !exists {
		return "", apperr.NotFound("target " + string(targetType) + " " + id + " not found")
	}
	return id, nil
}

// ListFilter holds the optional listing filters.
type ListFilter struct {
	UserID string
	Status string
}

// List returns the actor's own complaints, or any complaints for admins.
func (s *Service) List(ctx context.Context, actor *userentity.User, f ListFilter) ([]entity.Complaint, error) {
	rf := complaintrepo.Filter{CreatedBy: actor.ID, OrderBy: "created_at"}
	if actor.HasRole(string(userentity.UserTypeAdmin)) {
		rf = complaintrepo.Filter{CreatedBy: f.UserID, OrderBy: "updated_at"}
		if f.UserID != "" {
			if _, err := uuid.Parse(f.UserID); err != nil {
				return nil, apperr.Validation("user_id must be a UUID")
			}
		}
	}
	if f.Status != "" {
		st, ok := entity.ParseStatus(f.Status)
		if !ok {
			return nil, errStatus
		}
		rf.Status = st
	}
	out, err := s.repo.List(ctx, rf)
	if err != nil {
		return nil, apperr.Internal(err, "list complaints")
	}
	return out, nil
}

// Get returns a complaint visible to actor. Other users' complaints are
// reported as not found.
func (s *Service) Get(ctx context.Context, actor *userentity.User, id string) (*entity.Complaint, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrComplaintNotFound
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err, "get complaint")
	}
	if c.CreatedBy != actor.ID && !actor.HasRole(string(userentity.UserTypeAdmin)) {
		return nil, ErrComplaintNotFound
	}
	return c, nil
}

// StatusInput is the admin status update payload.
type StatusInput struct {
	Status       string  `json:"status"`
	AdminRemarks *string `json:"admin_remarks"`
}

// UpdateStatus applies a workflow transition.
func (s *Service) UpdateStatus(ctx context.Context, id string, in StatusInput) (*entity.Complaint, error) {
	if in.Status == "" {
		return nil, apperr.Validation("status is required")
	}
	next, ok := entity.ParseStatus(in.Status)
	if !ok {
		return nil, errStatus
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrComplaintNotFound
	}
	c, err := s.repo.UpdateStatus(ctx, id, next, in.AdminRemarks, s.now().UTC())
	if err != nil {
		return nil, mapErr(err, "update complaint status")
	}
	return c, nil
}

// RemarksInput is the admin remarks payload. Empty or missing remarks clear them.
type RemarksInput struct {
	Remarks *string `json:"remarks"`
}

// UpdateRemarks sets admin_remarks regardless of status.
func (s *Service) UpdateRemarks(ctx context.Context, id string, in RemarksInput) (*entity.Complaint, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrComplaintNotFound
	}
	var remarks *string
	if in.Remarks != nil && strings.TrimSpace(*in.Remarks) != "" {
		remarks = in.Remarks
	}
	c, err := s.repo.UpdateRemarks(ctx, id, remarks, s.now().UTC())
	if err != nil {
		return nil, mapErr(err, "update complaint remarks")
	}
	return c, nil
}

// EnsureSchema creates the complaints table.
func (s *Service) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureTable(ctx)
}

func mapErr(err error, op string) error {
	var te *complaintrepo.TransitionError
	if errors.As(err, &te) {
		return apperr.InvalidTransition(te.Error())
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrComplaintNotFound
	}
	return apperr.FromDB(err, op)
}
