package user

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/k1networth/users-bus/internal/shared/errs"
)

var validate = validator.New()

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Input carries the caller-supplied fields for create and update.
type Input struct {
	Username string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string
}

// Normalized returns in with surrounding whitespace stripped from username and email.
// The service stores and compares the normalized values, so " a@b.c" and "a@b.c" collide.
func (in Input) Normalized() Input {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	return in
}

// Validate rejects blank username/email and emails that are not shaped local@domain.
func (in Input) Validate() error {
	probe := Input{
		Username: strings.TrimSpace(in.Username),
		Email:    strings.TrimSpace(in.Email),
	}
	err := validate.Struct(probe)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errs.InvalidArgument("Invalid user data: %s", err.Error())
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return errs.InvalidArgument("Invalid user data: %s must not be null or empty", fe.Field())
	case "email":
		return errs.InvalidArgument("Invalid user data: %s must be a valid email address", fe.Field())
	default:
		return errs.InvalidArgument("Invalid user data: %s is invalid", fe.Field())
	}
}

type Action string

const (
	ActionCreated Action = "CREATED"
	ActionUpdated Action = "UPDATED"
	ActionDeleted Action = "DELETED"
	ActionGetOne  Action = "GET_ONE"
)

// Event is a snapshot of a user taken when an operation completed.
type Event struct {
	UserID    int64
	Username  string
	Email     string
	Action    Action
	Timestamp time.Time
}
