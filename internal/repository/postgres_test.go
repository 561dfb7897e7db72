package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/techtuto2024/techtuto-backend/internal/db"
	"github.com/techtuto2024/techtuto-backend/internal/model"
)

func openTestDB(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("TECHTUTO_TEST_DB")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("TECHTUTO_TEST_DB or DATABASE_URL not set")
		return nil
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil
	}
	if err := db.Migrate(context.Background(), pool); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func TestPostgresStoreUsers(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()

	store := NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	email := "pg." + uuid.NewString()[:8] + "@example.local"

	user := model.User{
		ID:           uuid.NewString(),
		Name:         "Test Mentor",
		Email:        email,
		Role:         model.RoleMentor,
		UserID:       "pgmentor@techtuto",
		PasswordHash: "hash",
		CountryName:  "India",
		Timezone:     "Asia/Kolkata",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.Insert(ctx, user); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := user
	dup.ID = uuid.NewString()
	dup.Role = model.RoleStudent
	if err := store.Insert(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected unique email across roles, got %v", err)
	}

	found, err := store.FindOne(ctx, model.UserQuery{Email: email})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != user.ID || found.Role != model.RoleMentor || found.Timezone != "Asia/Kolkata" {
		t.Fatalf("unexpected user %+v", found)
	}

	tokenHash := "hash-" + user.ID
	expires := now.Add(time.Hour)
	if err := store.UpdateByID(ctx, model.RoleMentor, user.ID, model.UserPatch{ResetTokenHash: &tokenHash, ResetTokenExpires: &expires, UpdatedAt: now}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.UpdateByID(ctx, model.RoleManager, user.ID, model.UserPatch{ClearResetToken: true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrong role to miss, got %v", err)
	}
	found, err = store.FindOne(ctx, model.UserQuery{ResetTokenHash: tokenHash, ResetExpiresAfter: &now})
	if err != nil {
		t.Fatalf("find by token: %v", err)
	}
	if found.ID != user.ID {
		t.Fatalf("unexpected user by token")
	}

	password := "new-hash"
	consume := model.UserPatch{PasswordHash: &password, ClearResetToken: true, UpdatedAt: now,
		Guard: &model.ResetGuard{TokenHash: tokenHash, ValidAt: now}}
	if err := store.UpdateByID(ctx, model.RoleMentor, user.ID, consume); err != nil {
		t.Fatalf("guarded update: %v", err)
	}
	if err := store.UpdateByID(ctx, model.RoleMentor, user.ID, consume); !errors.Is(err, ErrNotFound) {
		t.Fatalf("consumed token must not apply twice, got %v", err)
	}
}
