package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
	"github.com/techtuto2024/techtuto-backend/internal/crypto"
	"github.com/techtuto2024/techtuto-backend/internal/model"
	"github.com/techtuto2024/techtuto-backend/internal/repository"
	"github.com/techtuto2024/techtuto-backend/internal/reservation"
)

const (
	DefaultTimezone  = "UTC"
	userIDDomain     = "@techtuto"
	minPasswordChars = 6
)

type Reserver interface {
	Reserve(ctx context.Context, email string) (func(), error)
}

// Directory is the single view over the student, mentor and manager
// partitions. Callers never address a partition except through a role.
type Directory struct {
	store    repository.UserStore
	reserver Reserver
	validate *validator.Validate
	now      func() time.Time
}

func New(store repository.UserStore, reserver Reserver) *Directory {
	return &Directory{
		store:    store,
		reserver: reserver,
		validate: validator.New(),
		now:      time.Now,
	}
}

type NewUser struct {
	Name        string `validate:"required,min=3,max=30"`
	Email       string `validate:"required,email"`
	Role        string
	Password    string `validate:"omitempty,min=6"`
	CountryName string `validate:"max=64"`
	Timezone    string
	Avatar      *model.Avatar
}

type Registration struct {
	User model.User
	// GeneratedPassword is set when the caller supplied none.
	GeneratedPassword string
}

func (d *Directory) FindByEmailAnywhere(ctx context.Context, email string) (model.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return model.User{}, apperr.Validation(apperr.CodeMissingFields, "Email is required")
	}
	return d.FindByQueryAnywhere(ctx, model.UserQuery{Email: email})
}

func (d *Directory) FindByQueryAnywhere(ctx context.Context, query model.UserQuery) (model.User, error) {
	user, err := d.store.FindOne(ctx, query)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, apperr.NotFound(apperr.CodeUserNotFound, "User not found")
		}
		return model.User{}, apperr.Internal("user lookup failed", err)
	}
	return user, nil
}

func (d *Directory) FindByID(ctx context.Context, id string) (model.User, error) {
	if id == "" {
		return model.User{}, apperr.NotFound(apperr.CodeUserNotFound, "User not found")
	}
	return d.FindByQueryAnywhere(ctx, model.UserQuery{ID: id})
}

func (d *Directory) FindByUserID(ctx context.Context, userID string) (model.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.User{}, apperr.NotFound(apperr.CodeUserNotFound, "User not found")
	}
	return d.FindByQueryAnywhere(ctx, model.UserQuery{UserID: userID})
}

func (d *Directory) Create(ctx context.Context, in NewUser) (Registration, error) {
	role, ok := model.ParseRole(in.Role)
	if !ok {
		return Registration{}, apperr.Validation(apperr.CodeInvalidRole, "Invalid role")
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	in.CountryName = strings.TrimSpace(in.CountryName)
	if err := d.validate.Struct(in); err != nil {
		return Registration{}, validationError(err)
	}

	release, err := d.reserve(ctx, in.Email)
	if err != nil {
		return Registration{}, err
	}
	defer release()

	_, err = d.FindByEmailAnywhere(ctx, in.Email)
	switch {
	case err == nil:
		return Registration{}, apperr.Conflict(apperr.CodeDuplicateEmail, "User with this email already exists in another role")
	case !apperr.IsKind(err, apperr.KindNotFound):
		return Registration{}, err
	}

	reg := Registration{}
	password := in.Password
	if password == "" {
		password, err = crypto.GeneratePassword()
		if err != nil {
			return Registration{}, apperr.Internal("password generation failed", err)
		}
		reg.GeneratedPassword = password
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return Registration{}, apperr.Internal("password hashing failed", err)
	}

	now := d.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		Role:         role,
		UserID:       DeriveUserID(in.Email, role),
		PasswordHash: hash,
		Avatar:       in.Avatar,
		CountryName:  in.CountryName,
		Timezone:     NormalizeTimezone(in.Timezone),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.store.Insert(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return Registration{}, apperr.Conflict(apperr.CodeDuplicateEmail, "User with this email already exists in another role")
		}
		return Registration{}, apperr.Internal("could not store user", err)
	}
	reg.User = user
	return reg, nil
}

func (d *Directory) reserve(ctx context.Context, email string) (func(), error) {
	if d.reserver == nil {
		return func() {}, nil
	}
	release, err := d.reserver.Reserve(ctx, email)
	if err != nil {
		if errors.Is(err, reservation.ErrReserved) {
			return nil, apperr.Conflict(apperr.CodeEmailReserved, "A registration for this email is already in progress")
		}
		return nil, apperr.Internal("email reservation failed", err)
	}
	return release, nil
}

func (d *Directory) UpdateByID(ctx context.Context, role model.Role, id string, patch model.UserPatch) error {
	if _, ok := model.ParseRole(string(role)); !ok {
		return apperr.Validation(apperr.CodeInvalidRole, "Invalid role")
	}
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = d.now().UTC()
	}
	if err := d.store.UpdateByID(ctx, role, id, patch); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(apperr.CodeUserNotFound, "User not found")
		}
		return apperr.Internal("user update failed", err)
	}
	return nil
}

// Authenticate resolves the user by email and checks the password. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	if NormalizeEmail(email) == "" || password == "" {
		return model.User{}, apperr.Validation(apperr.CodeMissingFields, "Please enter all details")
	}
	user, err := d.FindByEmailAnywhere(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return model.User{}, apperr.Auth(apperr.CodeInvalidCredentials, "Invalid email or password")
		}
		return model.User{}, err
	}
	if err := crypto.CheckPassword(user.PasswordHash, password); err != nil {
		return model.User{}, apperr.Auth(apperr.CodeInvalidCredentials, "Invalid email or password")
	}
	return user, nil
}

// DeriveUserID builds the login id from the email local part and role,
// e.g. "a@x.com" as a student becomes "astudent@techtuto".
func DeriveUserID(email string, role model.Role) string {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}
	return strings.ToLower(local) + string(role) + userIDDomain
}

func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// NormalizeTimezone keeps recognised IANA names and falls back to UTC.
// "Local" would follow the server's zone and is not accepted.
func NormalizeTimezone(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return DefaultTimezone
	}
	if _, err := time.LoadLocation(name); err != nil {
		return DefaultTimezone
	}
	return name
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperr.Validation(apperr.CodeInvalidRequest, "Invalid request")
	}
	switch fieldErrs[0].Field() {
	case "Name":
		if fieldErrs[0].Tag() == "required" {
			return apperr.Validation(apperr.CodeMissingFields, "Please enter all details")
		}
		return apperr.Validation(apperr.CodeInvalidName, "Name must be between 3 and 30 characters")
	case "Email":
		if fieldErrs[0].Tag() == "required" {
			return apperr.Validation(apperr.CodeMissingFields, "Please enter all details")
		}
		return apperr.Validation(apperr.CodeInvalidEmail, "Please enter a valid email")
	case "Password":
		return apperr.Validation(apperr.CodeInvalidRequest, "Password must be at least 6 characters")
	default:
		return apperr.Validation(apperr.CodeInvalidRequest, fieldErrs[0].Error())
	}
}
