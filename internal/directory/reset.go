package directory

import (
	"context"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
	"github.com/techtuto2024/techtuto-backend/internal/crypto"
	"github.com/techtuto2024/techtuto-backend/internal/model"
)

// RequestPasswordReset stores a fresh token hash on the user and returns the
// raw token for delivery. A previous token is overwritten.
func (d *Directory) RequestPasswordReset(ctx context.Context, email string) (model.User, crypto.ResetToken, error) {
	user, err := d.FindByEmailAnywhere(ctx, email)
	if err != nil {
		return model.User{}, crypto.ResetToken{}, err
	}
	token, err := crypto.NewResetToken(d.now().UTC())
	if err != nil {
		return model.User{}, crypto.ResetToken{}, apperr.Internal("reset token generation failed", err)
	}
	patch := model.UserPatch{
		ResetTokenHash:    &token.Hash,
		ResetTokenExpires: &token.ExpiresAt,
	}
	if err := d.UpdateByID(ctx, user.Role, user.ID, patch); err != nil {
		return model.User{}, crypto.ResetToken{}, err
	}
	user.ResetTokenHash = &token.Hash
	user.ResetTokenExpires = &token.ExpiresAt
	return user, token, nil
}

// ResetPassword consumes a reset token. The token is cleared in the same
// update that sets the new hash, and that update only applies while the
// token is still stored, so concurrent uses succeed at most once.
func (d *Directory) ResetPassword(ctx context.Context, rawToken, newPassword string) (model.User, error) {
	if rawToken == "" {
		return model.User{}, invalidResetToken()
	}
	if len(newPassword) < minPasswordChars {
		return model.User{}, apperr.Validation(apperr.CodeInvalidRequest, "Password must be at least 6 characters")
	}
	now := d.now().UTC()
	tokenHash := crypto.HashToken(rawToken)
	user, err := d.FindByQueryAnywhere(ctx, model.UserQuery{
		ResetTokenHash:    tokenHash,
		ResetExpiresAfter: &now,
	})
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return model.User{}, invalidResetToken()
		}
		return model.User{}, err
	}
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return model.User{}, apperr.Internal("password hashing failed", err)
	}
	patch := model.UserPatch{
		PasswordHash:    &hash,
		ClearResetToken: true,
		UpdatedAt:       now,
		Guard:           &model.ResetGuard{TokenHash: tokenHash, ValidAt: now},
	}
	if err := d.UpdateByID(ctx, user.Role, user.ID, patch); err != nil {
		// Another request consumed the token between lookup and update.
		if apperr.IsKind(err, apperr.KindNotFound) {
			return model.User{}, invalidResetToken()
		}
		return model.User{}, err
	}
	user.PasswordHash = hash
	user.ResetTokenHash = nil
	user.ResetTokenExpires = nil
	return user, nil
}

func (d *Directory) ClearResetToken(ctx context.Context, user model.User) error {
	return d.UpdateByID(ctx, user.Role, user.ID, model.UserPatch{ClearResetToken: true})
}

// A bad or expired reset link is a 400, not a 401.
func invalidResetToken() error {
	return apperr.Validation(apperr.CodeInvalidResetToken, "Reset password token is invalid or has expired")
}
