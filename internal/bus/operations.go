package bus

import (
	"context"

	"github.com/k1networth/users-bus/internal/user"
)

var defaultRoles = []string{"USER"}

// Handler turns a decoded request into response data. It never publishes anything itself.
type Handler func(ctx context.Context, svc *user.Service, f Fields) (Data, error)

var handlers = map[Operation]Handler{
	OpCreate:        handleCreate,
	OpGetOne:        handleGetOne,
	OpGetByUsername: handleGetByUsername,
	OpUpdate:        handleUpdate,
	OpDelete:        handleDelete,
}

func handleCreate(ctx context.Context, svc *user.Service, f Fields) (Data, error) {
	name, err := Require[string](f, "name")
	if err != nil {
		return nil, err
	}
	email, err := Require[string](f, "email")
	if err != nil {
		return nil, err
	}
	password, err := Require[string](f, "password")
	if err != nil {
		return nil, err
	}

	u, err := svc.Create(ctx, &user.Input{Username: name, Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	return credentials(u), nil
}

func handleGetOne(ctx context.Context, svc *user.Service, f Fields) (Data, error) {
	email, err := Require[string](f, "email")
	if err != nil {
		return nil, err
	}

	u, err := svc.GetByKey(ctx, email)
	if err != nil {
		return nil, err
	}
	return profile(u), nil
}

// Callers address users by email, so the username field carries one.
func handleGetByUsername(ctx context.Context, svc *user.Service, f Fields) (Data, error) {
	username, err := Require[string](f, "username")
	if err != nil {
		return nil, err
	}

	u, err := svc.GetByKey(ctx, username)
	if err != nil {
		return nil, err
	}
	return credentials(u), nil
}

func handleUpdate(ctx context.Context, svc *user.Service, f Fields) (Data, error) {
	id, err := Require[int64](f, "id")
	if err != nil {
		return nil, err
	}
	username, err := Require[string](f, "username")
	if err != nil {
		return nil, err
	}
	email, err := Require[string](f, "email")
	if err != nil {
		return nil, err
	}
	password, err := Require[string](f, "password")
	if err != nil {
		return nil, err
	}

	u, err := svc.Update(ctx, id, &user.Input{Username: username, Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	return profile(u), nil
}

func handleDelete(ctx context.Context, svc *user.Service, f Fields) (Data, error) {
	id, err := Require[int64](f, "id")
	if err != nil {
		return nil, err
	}

	u, err := svc.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	return Data{"id": u.ID, "message": "User deleted successfully"}, nil
}

// credentials is the shape consumed by authentication callers: the login name is the email.
func credentials(u user.User) Data {
	return Data{
		"username": u.Email,
		"password": u.Password,
		"roles":    defaultRoles,
	}
}

func profile(u user.User) Data {
	return Data{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
		"roles":    defaultRoles,
	}
}
