package bus

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/k1networth/users-bus/internal/user"
)

// Operation is the closed set of request kinds the service answers.
type Operation int

const (
	OpCreate Operation = iota + 1
	OpGetOne
	OpGetByUsername
	OpUpdate
	OpDelete
)

var Operations = []Operation{OpCreate, OpGetOne, OpGetByUsername, OpUpdate, OpDelete}

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create user"
	case OpGetOne:
		return "get one user"
	case OpGetByUsername:
		return "get user by username"
	case OpUpdate:
		return "update user"
	case OpDelete:
		return "delete user"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// Label is the metric label for o.
func (o Operation) Label() string {
	switch o {
	case OpCreate:
		return "create"
	case OpGetOne:
		return "get_one"
	case OpGetByUsername:
		return "get_by_username"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Topics maps every operation and domain action to its channel. It is built once at
// startup and passed by value.
type Topics struct {
	Create        string
	GetOne        string
	GetByUsername string
	Update        string
	Delete        string

	Response string

	Created     string
	Updated     string
	Deleted     string
	GetOneEvent string
}

func DefaultTopics() Topics {
	return Topics{
		Create:        "request-user-created-topic",
		GetOne:        "request-user-get-one-topic",
		GetByUsername: "request-user-get-by-username-topic",
		Update:        "request-user-updated-topic",
		Delete:        "request-user-deleted-topic",

		Response: "response-user-details-topic",

		Created:     "user-created-topic",
		Updated:     "user-updated-topic",
		Deleted:     "user-deleted-topic",
		GetOneEvent: "user-get-one-topic",
	}
}

func (t Topics) Request(op Operation) string {
	switch op {
	case OpCreate:
		return t.Create
	case OpGetOne:
		return t.GetOne
	case OpGetByUsername:
		return t.GetByUsername
	case OpUpdate:
		return t.Update
	case OpDelete:
		return t.Delete
	default:
		return ""
	}
}

func (t Topics) Event(a user.Action) string {
	switch a {
	case user.ActionCreated:
		return t.Created
	case user.ActionUpdated:
		return t.Updated
	case user.ActionDeleted:
		return t.Deleted
	case user.ActionGetOne:
		return t.GetOneEvent
	default:
		return ""
	}
}

func (t Topics) RequestTopics() []string {
	return lo.Map(Operations, func(op Operation, _ int) string { return t.Request(op) })
}

// Validate requires every topic to be set and every request topic to be distinct from the
// others and from the response topic, so an inbound message maps to exactly one operation.
func (t Topics) Validate() error {
	all := append(t.RequestTopics(), t.Response, t.Created, t.Updated, t.Deleted, t.GetOneEvent)
	if lo.Contains(all, "") {
		return fmt.Errorf("topics: every topic must be set")
	}
	if dups := lo.FindDuplicates(append(t.RequestTopics(), t.Response)); len(dups) > 0 {
		return fmt.Errorf("topics: duplicate request/response topics %v", dups)
	}
	return nil
}
