package user_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/k1networth/users-bus/internal/user"
)

func TestInMemoryStoreAssignsIDs(t *testing.T) {
	s := user.NewInMemoryStore()
	ctx := context.Background()

	a, err := s.Save(ctx, user.User{Username: "a", Email: "a@mail.com"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := s.Save(ctx, user.User{Username: "b", Email: "b@mail.com"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("expected sequential ids, got %d and %d", a.ID, b.ID)
	}
}

func TestInMemoryStoreRejectsDuplicateEmail(t *testing.T) {
	s := user.NewInMemoryStore()
	ctx := context.Background()

	a, err := s.Save(ctx, user.User{Username: "a", Email: "a@mail.com"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.Save(ctx, user.User{Username: "b", Email: "a@mail.com"}); !errors.Is(err, user.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}

	a.Username = "renamed"
	if _, err := s.Save(ctx, a); err != nil {
		t.Fatalf("expected own email to be accepted on update, got %v", err)
	}
}

func TestInMemoryStoreUpdateMissing(t *testing.T) {
	s := user.NewInMemoryStore()
	if _, err := s.Save(context.Background(), user.User{ID: 7, Email: "x@mail.com"}); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Delete(context.Background(), 7); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentCreatesKeepEmailUnique(t *testing.T) {
	store := user.NewInMemoryStore()
	svc := user.NewService(store, nil, testLogger())

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), &user.Input{
				Username: fmt.Sprintf("user-%d", i),
				Email:    "race@mail.com",
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful create, got %d", ok)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", store.Len())
	}
}
