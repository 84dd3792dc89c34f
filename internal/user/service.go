package user

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-market-go/internal/user/repo"
)

// TokenIssuer signs session tokens for authenticated users.
type TokenIssuer interface {
	Issue(u *entity.User) (string, error)
}

// UserService orchestrates authentication and user lifecycle flows.
type UserService struct {
	repo   *userrepo.UserRepo
	hasher PasswordHasher
	tokens TokenIssuer
	// configuration knobs
	MaxFailed    int
	LockDuration time.Duration

	now func() time.Time
}

func NewUserService(db *sqlx.DB, r *userrepo.UserRepo, hasher PasswordHasher, tokens TokenIssuer) *UserService {
	if r == nil {
		r = userrepo.NewUserRepo(db)
	}
	if hasher == nil {
		hasher = BcryptHasher{Cost: DefaultBcryptCost}
	}
	return &UserService{
		repo:         r,
		hasher:       hasher,
		tokens:       tokens,
		MaxFailed:    5,
		LockDuration: 15 * time.Minute,
		now:          time.Now,
	}
}

var (
	ErrBadCredentials   = apperr.New(apperr.KindUnauthorized, "invalid_credentials", "invalid email or password")
	ErrDisabled         = apperr.New(apperr.KindForbidden, "account_inactive", "account is inactive")
	ErrCurrentPassword  = apperr.New(apperr.KindUnauthorized, "invalid_current_password", "current password is incorrect")
	ErrEmailTaken       = apperr.New(apperr.KindConflict, "email_taken", "email is already registered")
	ErrUserNotFound     = apperr.New(apperr.KindNotFound, "user_not_found", "user not found")
	ErrIdentityRequired = apperr.New(apperr.KindUnauthorized, "unauthorized", "authentication required")
)

// SignupInput is the signup payload.
type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	UserType string `json:"user_type"`
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	User  entity.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// Signup validates and creates an account, then issues a session token.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	u, err := s.createUser(ctx, in, false)
	if err != nil {
		return nil, err
	}
	return s.authResult(u)
}

// CreateAdmin creates a verified admin account.
func (s *UserService) CreateAdmin(ctx context.Context, name, email, password string) (*entity.User, error) {
	in := SignupInput{Name: name, Email: email, Password: password, UserType: string(entity.UserTypeAdmin)}
	return s.createUser(ctx, in, true)
}

func (s *UserService) createUser(ctx context.Context, in SignupInput, verified bool) (*entity.User, error) {
	name, email, userType, err := validateSignup(in)
	if err != nil {
		return nil, err
	}
	taken, err := s.repo.EmailTaken(ctx, email, "")
	if err != nil {
		return nil, apperr.Internal(err, "check email")
	}
	if taken {
		return nil, ErrEmailTaken
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(err, "hash password")
	}
	now := s.now().UTC()
	u := &entity.User{
		Email:         email,
		Name:          name,
		Password:      entity.HashedPassword(hash),
		UserType:      userType,
		IsActive:      true,
		EmailVerified: verified,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastLogin:     &now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if apperr.KindOf(apperr.FromDB(err, "create user")) == apperr.KindConflict {
			return nil, ErrEmailTaken
		}
		return nil, apperr.Internal(err, "create user")
	}
	return u, nil
}

func validateSignup(in SignupInput) (string, string, entity.UserType, error) {
	name := trim(in.Name)
	if name == "" {
		return "", "", "", apperr.Validation("name is required")
	}
	email := NormalizeEmail(in.Email)
	if !ValidEmail(email) {
		return "", "", "", apperr.Validation("a valid email is required")
	}
	if err := checkNewPassword("password", in.Password); err != nil {
		return "", "", "", err
	}
	userType, ok := entity.ParseUserType(in.UserType)
	if !ok {
		return "", "", "", apperr.Validation("user_type must be one of farmer, buyer, admin")
	}
	return name, email, userType, nil
}

// Login authenticates by email and password, applying the lockout policy.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if userrepo.IsNoRows(err) {
			return nil, ErrBadCredentials
		} // avoid user enumeration
		return nil, apperr.Internal(err, "load user")
	}

	now := s.now().UTC()
	if u.LockedAt(now) {
		return nil, apperr.Locked(*u.LockedUntil)
	}
	if !u.IsActive {
		return nil, ErrDisabled
	}

	ok, rehash := s.verifyPassword(u.Password, password)
	if !ok {
		fl, err := s.repo.RecordFailedLogin(ctx, u.ID, s.MaxFailed, s.LockDuration, now)
		if err != nil {
			return nil, apperr.Internal(err, "record failed login")
		}
		if fl.LockedUntil != nil && fl.LockedUntil.After(now) {
			return nil, apperr.Locked(*fl.LockedUntil)
		}
		return nil, ErrBadCredentials
	}

	// legacy plaintext and outdated hashes are replaced before the login completes;
	// a legacy value too long for bcrypt stays until the user sets a new password
	if rehash && len(password) <= MaxPasswordBytes {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return nil, apperr.Internal(err, "hash password")
		}
		if err := s.repo.UpdatePassword(ctx, u.ID, hash, false, now); err != nil {
			return nil, apperr.Internal(err, "migrate password")
		}
		u.Password = entity.HashedPassword(hash)
	}

	if err := s.repo.ResetLoginSuccess(ctx, u.ID, now); err != nil {
		return nil, apperr.Internal(err, "reset login counters")
	}
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.LastLogin = &now
	u.UpdatedAt = now
	return s.authResult(u)
}

// verifyPassword is the only place that compares against a stored password.
// rehash is true when the stored value must be replaced with a fresh hash.
func (s *UserService) verifyPassword(stored entity.StoredPassword, plain string) (ok, rehash bool) {
	switch {
	case stored.IsHashed():
		if !s.hasher.Verify(stored.Value(), plain) {
			return false, false
		}
		return true, s.hasher.NeedsRehash(stored.Value())
	case stored.IsLegacy():
		if !ConstantTimeCompare(stored.Value(), plain) {
			return false, false
		}
		return true, true
	default:
		return false, false
	}
}

// ChangePassword replaces the password of userID after verifying the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if userID == "" {
		return ErrIdentityRequired
	}
	if current == "" {
		return apperr.Validation("current password is required")
	}
	if err := checkNewPassword("new password", next); err != nil {
		return err
	}
	if next == current {
		return apperr.Validation("new password must differ from the current password")
	}
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if userrepo.IsNoRows(err) {
			return ErrIdentityRequired
		}
		return apperr.Internal(err, "load user")
	}
	if ok, _ := s.verifyPassword(u.Password, current); !ok {
		return ErrCurrentPassword
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return apperr.Internal(err, "hash password")
	}
	if err := s.repo.UpdatePassword(ctx, u.ID, hash, false, s.now().UTC()); err != nil {
		if userrepo.IsNoRows(err) {
			return ErrIdentityRequired
		}
		return apperr.Internal(err, "update password")
	}
	return nil
}

// ProfileInput carries the optional fields of a profile update.
type ProfileInput struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// UpdateProfile applies a partial profile update for userID.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*entity.User, error) {
	if userID == "" {
		return nil, ErrIdentityRequired
	}
	if in.Name == nil && in.Email == nil {
		return nil, apperr.NoOp("no fields to update")
	}
	var name, email *string
	if in.Name != nil {
		n := trim(*in.Name)
		if n == "" {
			return nil, apperr.Validation("name cannot be empty")
		}
		name = &n
	}
	if in.Email != nil {
		e := NormalizeEmail(*in.Email)
		if !ValidEmail(e) {
			return nil, apperr.Validation("a valid email is required")
		}
		taken, err := s.repo.EmailTaken(ctx, e, userID)
		if err != nil {
			return nil, apperr.Internal(err, "check email")
		}
		if taken {
			return nil, ErrEmailTaken
		}
		email = &e
	}
	u, err := s.repo.UpdateProfile(ctx, userID, name, email, s.now().UTC())
	if err != nil {
		switch apperr.KindOf(apperr.FromDB(err, "update profile")) {
		case apperr.KindNotFound:
			return nil, ErrUserNotFound
		case apperr.KindConflict:
			return nil, ErrEmailTaken
		}
		return nil, apperr.Internal(err, "update profile")
	}
	return u, nil
}

// GetByID loads a user for identity resolution.
func (s *UserService) GetByID(ctx context.Context, id string) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if userrepo.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.Internal(err, "load user")
	}
	return u, nil
}

// GetByEmail loads a user by address, normalizing it first.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	u, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if userrepo.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.Internal(err, "load user")
	}
	return u, nil
}

// ResetPassword sets a new password by email and clears any lockout.
func (s *UserService) ResetPassword(ctx context.Context, email, password string) error {
	if err := checkNewPassword("password", password); err != nil {
		return err
	}
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return apperr.Internal(err, "hash password")
	}
	if err := s.repo.UpdatePassword(ctx, u.ID, hash, true, s.now().UTC()); err != nil {
		return apperr.Internal(err, "update password")
	}
	return nil
}

// SetActive soft-disables or re-enables the account registered to email.
func (s *UserService) SetActive(ctx context.Context, email string, active bool) error {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, u.ID, active, s.now().UTC()); err != nil {
		return apperr.Internal(err, "set active")
	}
	return nil
}

// PasswordState reports how an account's password is stored.
type PasswordState struct {
	Email    string
	Name     string
	UserType entity.UserType
	IsActive bool
	Format   string
}

// PasswordStates lists the storage format of passwords, for the given emails or all users.
func (s *UserService) PasswordStates(ctx context.Context, emails []string) ([]PasswordState, error) {
	normalized := make([]string, 0, len(emails))
	for _, e := range emails {
		normalized = append(normalized, NormalizeEmail(e))
	}
	users, err := s.repo.List(ctx, normalized)
	if err != nil {
		return nil, apperr.Internal(err, "list users")
	}
	out := make([]PasswordState, 0, len(users))
	for _, u := range users {
		out = append(out, PasswordState{
			Email:    u.Email,
			Name:     u.Name,
			UserType: u.UserType,
			IsActive: u.IsActive,
			Format:   u.Password.String(),
		})
	}
	return out, nil
}

func (s *UserService) authResult(u *entity.User) (*AuthResult, error) {
	if s.tokens == nil {
		return nil, apperr.Internal(nil, "token issuer not configured")
	}
	tok, err := s.tokens.Issue(u)
	if err != nil {
		return nil, apperr.Internal(err, "issue token")
	}
	return &AuthResult{User: u.Public(), Token: tok}, nil
}

// EnsureSchema creates the users table.
func (s *UserService) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureTable(ctx)
}
