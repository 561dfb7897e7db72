package repository

import (
	"context"
	"sync"

	"github.com/techtuto2024/techtuto-backend/internal/model"
)

// MemoryStore keeps every partition in process memory. It backs local runs
// with STORE_DRIVER=memory and the package tests of its callers.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[model.Role][]model.User
	classes    []model.ScheduledClass
}

func NewMemoryStore() *MemoryStore {
	partitions := make(map[model.Role][]model.User, len(model.Roles))
	for _, role := range model.Roles {
		partitions[role] = nil
	}
	return &MemoryStore{partitions: partitions}
}

func (s *MemoryStore) FindOne(_ context.Context, query model.UserQuery) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if query.Empty() {
		return model.User{}, ErrNotFound
	}
	for _, role := range model.Roles {
		var best *model.User
		for i, user := range s.partitions[role] {
			if query.Matches(user) && (best == nil || user.CreatedAt.Before(best.CreatedAt)) {
				best = &s.partitions[role][i]
			}
		}
		if best != nil {
			return cloneUser(*best), nil
		}
	}
	return model.User{}, ErrNotFound
}

func (s *MemoryStore) Insert(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	partition, ok := s.partitions[user.Role]
	if !ok {
		return ErrNotFound
	}
	for _, existing := range partition {
		if existing.ID == user.ID || existing.Email == user.Email {
			return ErrDuplicate
		}
	}
	s.partitions[user.Role] = append(partition, cloneUser(user))
	return nil
}

func (s *MemoryStore) UpdateByID(_ context.Context, role model.Role, id string, patch model.UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	partition := s.partitions[role]
	for i := range partition {
		if partition[i].ID != id {
			continue
		}
		if !patch.Guard.Matches(partition[i]) {
			return ErrNotFound
		}
		applyPatch(&partition[i], patch)
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) InsertClass(_ context.Context, class model.ScheduledClass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.classes {
		if existing.ID == class.ID {
			return ErrDuplicate
		}
	}
	s.classes = append(s.classes, class)
	return nil
}

func (s *MemoryStore) ListClasses(_ context.Context, filter model.ClassFilter) ([]model.ScheduledClass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ScheduledClass
	for _, class := range s.classes {
		if filter.Matches(class) {
			out = append(out, class)
		}
	}
	return out, nil
}

// ClassCount is used by tests asserting that nothing was persisted.
func (s *MemoryStore) ClassCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.classes)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }

func applyPatch(user *model.User, patch model.UserPatch) {
	if patch.PasswordHash != nil {
		user.PasswordHash = *patch.PasswordHash
	}
	if patch.ClearResetToken {
		user.ResetTokenHash = nil
		user.ResetTokenExpires = nil
	} else {
		if patch.ResetTokenHash != nil {
			hash := *patch.ResetTokenHash
			user.ResetTokenHash = &hash
		}
		if patch.ResetTokenExpires != nil {
			expires := *patch.ResetTokenExpires
			user.ResetTokenExpires = &expires
		}
	}
	if !patch.UpdatedAt.IsZero() {
		user.UpdatedAt = patch.UpdatedAt
	}
}

func cloneUser(user model.User) model.User {
	if user.Avatar != nil {
		avatar := *user.Avatar
		user.Avatar = &avatar
	}
	if user.ResetTokenHash != nil {
		hash := *user.ResetTokenHash
		user.ResetTokenHash = &hash
	}
	if user.ResetTokenExpires != nil {
		expires := *user.ResetTokenExpires
		user.ResetTokenExpires = &expires
	}
	return user
}
