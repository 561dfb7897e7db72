package avatar

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
	"github.com/techtuto2024/techtuto-backend/internal/model"
)

const MaxSize = 2 << 20

var allowed = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// LocalStore writes avatars under dir and serves them from baseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) *LocalStore {
	if dir == "" {
		dir = "avatars"
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Save(ctx context.Context, data []byte) (model.Avatar, error) {
	if err := ctx.Err(); err != nil {
		return model.Avatar{}, err
	}
	if len(data) == 0 || len(data) > MaxSize {
		return model.Avatar{}, apperr.Validation(apperr.CodeInvalidAvatar, "Avatar must be an image of at most 2 MB")
	}
	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowed...) {
		return model.Avatar{}, apperr.Validation(apperr.CodeInvalidAvatar, "Avatar must be a JPEG, PNG, GIF or WebP image")
	}

	name := uuid.NewString() + mtype.Extension()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return model.Avatar{}, apperr.Internal("could not create avatar directory", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return model.Avatar{}, apperr.Internal("could not save avatar", fmt.Errorf("write %s: %w", name, err))
	}
	return model.Avatar{ID: name, URL: s.baseURL + "/avatars/" + name}, nil
}

// Delete removes a saved avatar. Missing files are not an error.
func (s *LocalStore) Delete(_ context.Context, avatar model.Avatar) error {
	if avatar.ID == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, filepath.Base(avatar.ID)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove avatar %s: %w", avatar.ID, err)
	}
	return nil
}
