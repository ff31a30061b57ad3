package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/simaland/userapi/internal/auth"
	"github.com/simaland/userapi/internal/metrics"
	"github.com/simaland/userapi/internal/store"
	"github.com/simaland/userapi/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user types.User, perm *types.Permission) (types.User, error)
	List(ctx context.Context) ([]types.UserView, error)
	Update(ctx context.Context, user types.User, change *types.PermissionChange) error
	Delete(ctx context.Context, id int) error
}

// UserInput is the body of POST /user and PATCH /user.
type UserInput struct {
	ID        int    `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Login     string `json:"login"`
	Password  string `json:"password"`
	BirthDate string `json:"birth_date"`
	Blocked   *bool  `json:"blocked,omitempty"`
	IsAdmin   *bool  `json:"is_admin,omitempty"`
}

// DeleteUserRequest is the body of DELETE /user.
type DeleteUserRequest struct {
	ID int `json:"id"`
}

// maxNameLength matches the VARCHAR(200) columns of the users table.
const maxNameLength = 200

// Validate checks the required fields and returns the parsed birth date.
func (in UserInput) Validate() (types.Date, error) {
	switch {
	case strings.TrimSpace(in.FirstName) == "":
		return types.Date{}, badRequest("first_name is required")
	case strings.TrimSpace(in.LastName) == "":
		return types.Date{}, badRequest("last_name is required")
	case strings.TrimSpace(in.Login) == "":
		return types.Date{}, badRequest("login is required")
	case in.Password == "":
		return types.Date{}, badRequest("password is required")
	case strings.TrimSpace(in.BirthDate) == "":
		return types.Date{}, badRequest("birth_date is required")
	case utf8.RuneCountInString(strings.TrimSpace(in.FirstName)) > maxNameLength:
		return types.Date{}, badRequest("first_name is too long")
	case utf8.RuneCountInString(strings.TrimSpace(in.LastName)) > maxNameLength:
		return types.Date{}, badRequest("last_name is too long")
	case utf8.RuneCountInString(in.Login) > maxNameLength:
		return types.Date{}, badRequest("login is too long")
	}
	birthDate, err := types.ParseDate(in.BirthDate)
	if err != nil {
		return types.Date{}, badRequest("birth_date must be YYYY-MM-DD")
	}
	return birthDate, nil
}

func (in UserInput) permission() *types.Permission {
	if in.Blocked == nil && in.IsAdmin == nil {
		return nil
	}
	perm := &types.Permission{}
	if in.Blocked != nil {
		perm.Blocked = *in.Blocked
	}
	if in.IsAdmin != nil {
		perm.IsAdmin = *in.IsAdmin
	}
	return perm
}

func (in UserInput) permissionChange() *types.PermissionChange {
	if in.Blocked == nil && in.IsAdmin == nil {
		return nil
	}
	return &types.PermissionChange{Blocked: in.Blocked, IsAdmin: in.IsAdmin}
}

// UserService encapsulates the permission-gated user use-cases.
type UserService struct {
	repo    UserRepository
	hasher  *auth.Hasher
	events  *Events
	metrics *metrics.Metrics
}

func NewUserService(repo UserRepository, hasher *auth.Hasher, events *Events, m *metrics.Metrics) *UserService {
	if m == nil {
		m = metrics.New(nil)
	}
	return &UserService{repo: repo, hasher: hasher, events: events, metrics: m}
}

// Create stores a new user. Requires an unblocked admin.
func (s *UserService) Create(ctx context.Context, ac auth.Context, in UserInput) (types.User, error) {
	user, err := s.create(ctx, ac, in)
	s.observe("create", err)
	return user, err
}

func (s *UserService) create(ctx context.Context, ac auth.Context, in UserInput) (types.User, error) {
	if !ac.CanWrite() {
		return types.User{}, forbidden()
	}
	user, err := s.userFromInput(in)
	if err != nil {
		return types.User{}, err
	}

	created, err := s.repo.Create(ctx, user, in.permission())
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, conflict("login already exists", err)
		}
		return types.User{}, err
	}

	s.events.emit(ctx, types.EventUserCreated, created.ID, created.Login)
	return created, nil
}

// List returns all users with their permission flags. Requires an unblocked caller.
func (s *UserService) List(ctx context.Context, ac auth.Context) ([]types.UserView, error) {
	if !ac.CanRead() {
		err := forbidden()
		s.observe("list", err)
		return nil, err
	}
	users, err := s.repo.List(ctx)
	s.observe("list", err)
	return users, err
}

// Update overwrites an existing user. Requires an unblocked admin.
func (s *UserService) Update(ctx context.Context, ac auth.Context, in UserInput) error {
	err := s.update(ctx, ac, in)
	s.observe("update", err)
	return err
}

func (s *UserService) update(ctx context.Context, ac auth.Context, in UserInput) error {
	if !ac.CanWrite() {
		return forbidden()
	}
	if in.ID < 1 {
		return badRequest("id is required")
	}
	user, err := s.userFromInput(in)
	if err != nil {
		return err
	}
	user.ID = in.ID

	if err := s.repo.Update(ctx, user, in.permissionChange()); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return conflict("login already exists", err)
		case errors.Is(err, store.ErrNotFound):
			return notFound("user not found", err)
		}
		return err
	}

	s.events.emit(ctx, types.EventUserUpdated, user.ID, user.Login)
	return nil
}

// Delete removes a user with its permissions and session. Requires an unblocked admin.
func (s *UserService) Delete(ctx context.Context, ac auth.Context, id int) error {
	err := s.delete(ctx, ac, id)
	s.observe("delete", err)
	return err
}

func (s *UserService) delete(ctx context.Context, ac auth.Context, id int) error {
	if !ac.CanWrite() {
		return forbidden()
	}
	if id < 1 {
		return badRequest("id is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("user not found", err)
		}
		return err
	}

	s.events.emit(ctx, types.EventUserDeleted, id, "")
	return nil
}

func (s *UserService) userFromInput(in UserInput) (types.User, error) {
	birthDate, err := in.Validate()
	if err != nil {
		return types.User{}, err
	}
	return types.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Login:        in.Login,
		PasswordHash: s.hasher.Hash(in.Password),
		BirthDate:    birthDate,
	}, nil
}

func (s *UserService) observe(operation string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		switch KindOf(err) {
		case KindForbidden:
			outcome = metrics.OutcomeForbidden
		case KindConflict:
			outcome = metrics.OutcomeConflict
		default:
			outcome = metrics.OutcomeError
		}
	}
	s.metrics.UserOperations.WithLabelValues(operation, outcome).Inc()
}
