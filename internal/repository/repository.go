package repository

import (
	"context"
	"errors"

	"github.com/techtuto2024/techtuto-backend/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// UserStore persists user records partitioned by role. FindOne scans the
// partitions in model.Roles order and returns the first match.
type UserStore interface {
	FindOne(ctx context.Context, query model.UserQuery) (model.User, error)
	Insert(ctx context.Context, user model.User) error
	UpdateByID(ctx context.Context, role model.Role, id string, patch model.UserPatch) error
}

type ClassStore interface {
	InsertClass(ctx context.Context, class model.ScheduledClass) error
	ListClasses(ctx context.Context, filter model.ClassFilter) ([]model.ScheduledClass, error)
}

type Store interface {
	UserStore
	ClassStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
