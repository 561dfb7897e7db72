package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
	"github.com/techtuto2024/techtuto-backend/internal/metrics"
	"github.com/techtuto2024/techtuto-backend/internal/notify"
)

type resetRequest struct {
	Email string `json:"email"`
}

type newPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Server) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) error {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	user, token, err := s.deps.Directory.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		return err
	}

	resetURL := s.cfg.FrontendURL + "/resetpassword/" + url.PathEscape(token.Raw)
	msg, err := s.deps.Renderer.Render(notify.PasswordReset, user.Email, map[string]string{
		"name":     user.Name,
		"resetUrl": resetURL,
	})
	if err == nil {
		err = s.deps.Mailer.Send(r.Context(), msg)
	}
	metrics.EmailsSent.WithLabelValues(string(notify.PasswordReset), metrics.Result(err)).Inc()
	if err != nil {
		// A link nobody received must not stay valid. When the send may
		// still land, the link is kept and lapses on its own expiry.
		if errors.Is(err, notify.ErrUnconfirmed) {
			s.logger.Warn("reset email unconfirmed, token kept", slog.String("user_id", user.UserID))
		} else if clearErr := s.deps.Directory.ClearResetToken(context.WithoutCancel(r.Context()), user); clearErr != nil {
			s.logger.Error("reset token rollback failed", slog.String("user_id", user.UserID), slog.Any("err", clearErr))
		}
		if apperr.As(err) == nil {
			err = apperr.Wrap(apperr.KindInternal, apperr.CodeSendError, "Failed to send email", err)
		}
		return err
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email sent to " + user.Email + " successfully",
	})
	return nil
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) error {
	var req newPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		return apperr.Validation(apperr.CodeInvalidRequest, "Passwords do not match")
	}
	if _, err := s.deps.Directory.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
	return nil
}
