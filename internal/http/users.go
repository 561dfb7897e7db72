package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
	"github.com/techtuto2024/techtuto-backend/internal/auth"
	"github.com/techtuto2024/techtuto-backend/internal/avatar"
	"github.com/techtuto2024/techtuto-backend/internal/directory"
	"github.com/techtuto2024/techtuto-backend/internal/metrics"
	"github.com/techtuto2024/techtuto-backend/internal/model"
	"github.com/techtuto2024/techtuto-backend/internal/notify"
)

type countryPayload struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

type registerRequest struct {
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Role        string          `json:"role"`
	Password    string          `json:"password"`
	CountryName string          `json:"countryName"`
	Timezone    string          `json:"timezone"`
	Country     *countryPayload `json:"country"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID        string         `json:"_id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Role      string         `json:"role"`
	UserID    string         `json:"userId"`
	Avatar    *model.Avatar  `json:"avatar,omitempty"`
	Country   countryPayload `json:"country"`
	CreatedAt time.Time      `json:"createdAt"`
}

func toUserView(user model.User) userView {
	return userView{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      string(user.Role),
		UserID:    user.UserID,
		Avatar:    user.Avatar,
		Country:   countryPayload{Name: user.CountryName, Timezone: user.Timezone},
		CreatedAt: user.CreatedAt,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) error {
	req, upload, err := readRegistration(w, r)
	if err != nil {
		return err
	}
	in := directory.NewUser{
		Name:        req.Name,
		Email:       req.Email,
		Role:        req.Role,
		Password:    req.Password,
		CountryName: req.CountryName,
		Timezone:    req.Timezone,
	}
	if req.Country != nil {
		if in.CountryName == "" {
			in.CountryName = req.Country.Name
		}
		if in.Timezone == "" {
			in.Timezone = req.Country.Timezone
		}
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" || strings.TrimSpace(in.Role) == "" {
		return apperr.Validation(apperr.CodeMissingFields, "Please enter all details")
	}

	if len(upload) > 0 {
		if s.deps.Avatars == nil {
			return apperr.Validation(apperr.CodeInvalidAvatar, "Avatar uploads are disabled")
		}
		saved, err := s.deps.Avatars.Save(r.Context(), upload)
		if err != nil {
			return err
		}
		in.Avatar = &saved
	}

	reg, err := s.deps.Directory.Create(r.Context(), in)
	if err != nil {
		if in.Avatar != nil {
			if delErr := s.deps.Avatars.Delete(context.WithoutCancel(r.Context()), *in.Avatar); delErr != nil {
				s.logger.Warn("orphan avatar left behind", slog.String("avatar", in.Avatar.ID), slog.Any("err", delErr))
			}
		}
		return err
	}
	metrics.Registrations.WithLabelValues(string(reg.User.Role)).Inc()

	s.sendWelcome(r.Context(), reg)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "User registered successfully",
		"user":    toUserView(reg.User),
	})
	return nil
}

// readRegistration accepts JSON or a multipart form with an optional
// "avatar" file part.
func readRegistration(w http.ResponseWriter, r *http.Request) (registerRequest, []byte, error) {
	var req registerRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := decodeJSON(r, &req); err != nil {
			return req, nil, err
		}
		return req, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, avatar.MaxSize+(1<<20))
	if err := r.ParseMultipartForm(avatar.MaxSize); err != nil {
		return req, nil, apperr.Validation(apperr.CodeInvalidRequest, "Invalid multipart form")
	}
	req = registerRequest{
		Name:        r.FormValue("name"),
		Email:       r.FormValue("email"),
		Role:        r.FormValue("role"),
		Password:    r.FormValue("password"),
		CountryName: r.FormValue("countryName"),
		Timezone:    r.FormValue("timezone"),
	}
	file, _, err := r.FormFile("avatar")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, apperr.Validation(apperr.CodeInvalidAvatar, "Invalid avatar upload")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, avatar.MaxSize+1))
	if err != nil {
		return req, nil, apperr.Validation(apperr.CodeInvalidAvatar, "Invalid avatar upload")
	}
	return req, data, nil
}

// sendWelcome mails the account details. A failure is logged; the account
// already exists and the password can be reset.
func (s *Server) sendWelcome(ctx context.Context, reg directory.Registration) {
	msg, err := s.deps.Renderer.Render(notify.Welcome, reg.User.Email, map[string]string{
		"name":     reg.User.Name,
		"email":    reg.User.Email,
		"userId":   reg.User.UserID,
		"password": reg.GeneratedPassword,
	})
	if err == nil {
		err = s.deps.Mailer.Send(ctx, msg)
	}
	metrics.EmailsSent.WithLabelValues(string(notify.Welcome), metrics.Result(err)).Inc()
	if err != nil {
		s.logger.Error("welcome email failed", slog.String("user_id", reg.User.UserID), slog.Any("err", err))
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	user, err := s.deps.Directory.Authenticate(r.Context(), req.Email, req.Password)
	metrics.Logins.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return err
	}
	token, expiresAt, err := s.issuer.Issue(user)
	if err != nil {
		return apperr.Internal("could not issue session", err)
	}

	resp := map[string]interface{}{
		"message": "Logged in successfully",
		"user":    toUserView(user),
	}
	if s.delivery.UsesBody() {
		resp["token"] = token
	}
	if s.delivery.UsesCookie() {
		auth.SetSessionCookie(w, s.cookies, token, expiresAt)
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) error {
	auth.ClearSessionCookie(w, s.cookies)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
	return nil
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) error {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": toUserView(user)})
	return nil
}

func (s *Server) handleVerifyToken(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
	return nil
}
