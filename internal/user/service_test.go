package user_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/k1networth/users-bus/internal/shared/errs"
	"github.com/k1networth/users-bus/internal/user"
)

func testLogger() *slog.Logger {
	h := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h).With(
		slog.String("app", "test"),
		slog.String("env", "test"),
	)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []user.Event
	err    error
}

func (r *recordingEvents) Publish(ctx context.Context, ev user.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingEvents) actions() []user.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]user.Action, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

func newTestService() (*user.Service, *user.InMemoryStore, *recordingEvents) {
	store := user.NewInMemoryStore()
	events := &recordingEvents{}
	return user.NewService(store, events, testLogger()), store, events
}

func alice() *user.Input {
	return &user.Input{Username: "Alice", Email: "alice@mail.com", Password: "p"}
}

func TestCreateThenGetByKeyRoundTrip(t *testing.T) {
	svc, _, events := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, alice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected id to be assigned")
	}

	got, err := svc.GetByKey(ctx, "alice@mail.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Username != "Alice" || got.Email != "alice@mail.com" {
		t.Fatalf("unexpected user %+v", got)
	}

	acts := events.actions()
	if len(acts) != 2 || acts[0] != user.ActionCreated || acts[1] != user.ActionGetOne {
		t.Fatalf("unexpected events %v", acts)
	}
}

func TestCreateDuplicateEmailLeavesStoreUnchanged(t *testing.T) {
	svc, store, events := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, alice()); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := svc.Create(ctx, &user.Input{Username: "Other", Email: "alice@mail.com", Password: "x"})
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if err.Error() != "User with email alice@mail.com already exists" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", store.Len())
	}

	got, err := svc.GetByKey(ctx, "alice@mail.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Username != "Alice" {
		t.Fatalf("expected original username, got %q", got.Username)
	}
	if n := len(events.actions()); n != 2 {
		t.Fatalf("expected CREATED and GET_ONE only, got %d events", n)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		in   *user.Input
	}{
		{"nil input", nil},
		{"blank username", &user.Input{Username: "  ", Email: "a@b.com"}},
		{"empty email", &user.Input{Username: "A", Email: ""}},
		{"email without domain", &user.Input{Username: "A", Email: "alice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, events := newTestService()
			_, err := svc.Create(context.Background(), tt.in)
			if !errors.Is(err, errs.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
			if store.Len() != 0 || len(events.actions()) != 0 {
				t.Fatalf("expected no side effects")
			}
		})
	}
}

func TestGetByKey(t *testing.T) {
	svc, _, events := newTestService()
	ctx := context.Background()

	_, err := svc.GetByKey(ctx, " ")
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	_, err = svc.GetByKey(ctx, "ghost@mail.com")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err.Error() != "User not found for username: ghost@mail.com" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if len(events.actions()) != 0 {
		t.Fatalf("expected no events on failure")
	}
}

func TestUpdateKeepsPassword(t *testing.T) {
	svc, store, events := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, alice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(ctx, created.ID, &user.Input{Username: "Alicia", Email: "alicia@mail.com", Password: "new"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Username != "Alicia" || updated.Email != "alicia@mail.com" {
		t.Fatalf("unexpected user %+v", updated)
	}

	stored, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Password != "p" {
		t.Fatalf("expected password to stay %q, got %q", "p", stored.Password)
	}
	if _, err := store.FindByEmail(ctx, "alice@mail.com"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected old email to be released, got %v", err)
	}

	acts := events.actions()
	if acts[len(acts)-1] != user.ActionUpdated {
		t.Fatalf("expected UPDATED event, got %v", acts)
	}
}

func TestUpdateFailures(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	a, err := svc.Create(ctx, alice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, &user.Input{Username: "Bob", Email: "bob@mail.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name string
		id   int64
		in   *user.Input
		kind error
	}{
		{"zero id", 0, alice(), errs.ErrInvalidArgument},
		{"negative id", -4, alice(), errs.ErrInvalidArgument},
		{"nil input", a.ID, nil, errs.ErrInvalidArgument},
		{"missing user", 999, alice(), errs.ErrNotFound},
		{"blank username", a.ID, &user.Input{Username: "", Email: "alice@mail.com"}, errs.ErrInvalidArgument},
		{"email taken", a.ID, &user.Input{Username: "Alice", Email: "bob@mail.com"}, errs.ErrAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, tt.id, tt.in)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
		})
	}

	got, err := svc.GetByKey(ctx, "alice@mail.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Username != "Alice" {
		t.Fatalf("expected no partial update, got %+v", got)
	}
}

func TestDelete(t *testing.T) {
	svc, store, events := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, alice())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Delete(ctx, 0); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := svc.Delete(ctx, created.ID+1); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected record to survive failed deletes")
	}

	deleted, err := svc.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.Email != "alice@mail.com" {
		t.Fatalf("expected pre-deletion snapshot, got %+v", deleted)
	}
	if store.Len() != 0 {
		t.Fatalf("expected store to be empty")
	}

	last := events.events[len(events.events)-1]
	if last.Action != user.ActionDeleted || last.Email != "alice@mail.com" || last.UserID != created.ID {
		t.Fatalf("unexpected delete event %+v", last)
	}

	if _, err := svc.Delete(ctx, created.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestCreateTrimsEmailBeforeUniquenessCheck(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, alice()); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := svc.Create(ctx, &user.Input{Username: "Other", Email: "  alice@mail.com ", Password: "x"})
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("expected already exists for padded email, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", store.Len())
	}

	bob, err := svc.Create(ctx, &user.Input{Username: " Bob ", Email: " bob@mail.com", Password: "x"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if bob.Username != "Bob" || bob.Email != "bob@mail.com" {
		t.Fatalf("expected trimmed fields, got %+v", bob)
	}
	if _, err := svc.GetByKey(ctx, "bob@mail.com "); err != nil {
		t.Fatalf("expected lookup by padded key to hit, got %v", err)
	}
}

func TestUpdateTrimsEmailBeforeUniquenessCheck(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, alice()); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := svc.Create(ctx, &user.Input{Username: "Bob", Email: "bob@mail.com", Password: "x"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	_, err = svc.Update(ctx, bob.ID, &user.Input{Username: "Bob", Email: "alice@mail.com ", Password: "x"})
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
}

func TestEventFailureDoesNotFailOperation(t *testing.T) {
	store := user.NewInMemoryStore()
	events := &recordingEvents{err: errors.New("broker unavailable")}
	svc := user.NewService(store, events, testLogger())

	if _, err := svc.Create(context.Background(), alice()); err != nil {
		t.Fatalf("expected create to succeed, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected record to be saved")
	}
}
