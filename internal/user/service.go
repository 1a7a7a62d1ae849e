package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/k1networth/users-bus/internal/shared/errs"
)

// EventPublisher receives a domain event after each successful operation.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Service owns the user invariants: field validation, email uniqueness and existence checks.
// It is transport agnostic; every failure is an *errs.Error or a wrapped store error.
type Service struct {
	store  Store
	events EventPublisher
	log    *slog.Logger
	now    func() time.Time
}

func NewService(store Store, events EventPublisher, log *slog.Logger) *Service {
	return &Service{
		store:  store,
		events: events,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetByKey looks a user up by email, the key every caller addresses users with.
func (s *Service) GetByKey(ctx context.Context, key string) (User, error) {
	if strings.TrimSpace(key) == "" {
		return User{}, errs.InvalidArgument("Email must not be null or empty")
	}

	u, err := s.store.FindByEmail(ctx, strings.TrimSpace(key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, errs.NotFound("User not found for username: %s", key)
		}
		return User{}, fmt.Errorf("find user by email: %w", err)
	}

	s.notify(ctx, u, ActionGetOne)
	return u, nil
}

func (s *Service) Create(ctx context.Context, in *Input) (User, error) {
	if in == nil {
		return User{}, errs.InvalidArgument("User data must not be null")
	}
	norm := in.Normalized()
	in = &norm
	if err := in.Validate(); err != nil {
		return User{}, err
	}

	_, err := s.store.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return User{}, errs.AlreadyExists("User with email %s already exists", in.Email)
	case !errors.Is(err, ErrNotFound):
		return User{}, fmt.Errorf("find user by email: %w", err)
	}

	created, err := s.store.Save(ctx, User{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return User{}, errs.AlreadyExists("User with email %s already exists", in.Email)
		}
		return User{}, fmt.Errorf("save user: %w", err)
	}

	s.notify(ctx, created, ActionCreated)
	return created, nil
}

// Update overwrites username and email. The password is left untouched on this path.
func (s *Service) Update(ctx context.Context, id int64, in *Input) (User, error) {
	if id <= 0 {
		return User{}, errs.InvalidArgument("id must be a positive number")
	}
	if in == nil {
		return User{}, errs.InvalidArgument("User data must not be null")
	}

	existing, err := s.findByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	norm := in.Normalized()
	in = &norm
	if err := in.Validate(); err != nil {
		return User{}, err
	}

	if in.Email != existing.Email {
		owner, err := s.store.FindByEmail(ctx, in.Email)
		switch {
		case err == nil && owner.ID != id:
			return User{}, errs.AlreadyExists("User with email %s already exists", in.Email)
		case err != nil && !errors.Is(err, ErrNotFound):
			return User{}, fmt.Errorf("find user by email: %w", err)
		}
	}

	existing.Username = in.Username
	existing.Email = in.Email

	updated, err := s.store.Save(ctx, existing)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return User{}, errs.AlreadyExists("User with email %s already exists", in.Email)
		case errors.Is(err, ErrNotFound):
			return User{}, errs.NotFound("User not found with id: %d", id)
		}
		return User{}, fmt.Errorf("save user: %w", err)
	}

	s.notify(ctx, updated, ActionUpdated)
	return updated, nil
}

// Delete removes the user and returns the record as it was before deletion.
func (s *Service) Delete(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, errs.InvalidArgument("id must be a positive number")
	}

	existing, err := s.findByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, errs.NotFound("User not found with id: %d", id)
		}
		return User{}, fmt.Errorf("delete user: %w", err)
	}

	s.notify(ctx, existing, ActionDeleted)
	return existing, nil
}

func (s *Service) findByID(ctx context.Context, id int64) (User, error) {
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, errs.NotFound("User not found with id: %d", id)
		}
		return User{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// notify publishes the event; a failure is logged and does not fail the operation,
// the mutation is already durable at this point.
func (s *Service) notify(ctx context.Context, u User, action Action) {
	if s.events == nil {
		return
	}
	ev := Event{
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Action:    action,
		Timestamp: s.now(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Error("user_event_publish_failed",
			slog.String("action", string(action)),
			slog.Int64("user_id", u.ID),
			slog.String("err", err.Error()),
		)
	}
}
