package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/techtuto2024/techtuto-backend/internal/model"
)

const pgUniqueViolation = "23505"

// PostgresStore keeps all partitions in one users table tagged by role.
// Email uniqueness is a unique index, so the directory's cross-partition
// check is backed by the storage layer.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const userColumns = `id, name, email, role, user_id, password_hash, avatar_id, avatar_url,
  country_name, timezone, reset_token_hash, reset_token_expires, created_at, updated_at`

func (s *PostgresStore) FindOne(ctx context.Context, query model.UserQuery) (model.User, error) {
	if query.Empty() {
		return model.User{}, ErrNotFound
	}
	where, args := userWhere(query)
	row := s.pool.QueryRow(ctx, `
    SELECT `+userColumns+`
    FROM users
    WHERE `+where+`
    ORDER BY CASE role WHEN 'student' THEN 0 WHEN 'mentor' THEN 1 ELSE 2 END, created_at
    LIMIT 1
  `, args...)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return user, err
}

func (s *PostgresStore) Insert(ctx context.Context, user model.User) error {
	var avatarID, avatarURL *string
	if user.Avatar != nil {
		avatarID = &user.Avatar.ID
		avatarURL = &user.Avatar.URL
	}
	_, err := s.pool.Exec(ctx, `
    INSERT INTO users (`+userColumns+`)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
  `, user.ID, user.Name, user.Email, string(user.Role), user.UserID, user.PasswordHash, avatarID, avatarURL,
		user.CountryName, user.Timezone, user.ResetTokenHash, user.ResetTokenExpires, user.CreatedAt, user.UpdatedAt)
	return mapWriteError(err)
}

func (s *PostgresStore) UpdateByID(ctx context.Context, role model.Role, id string, patch model.UserPatch) error {
	sets := []string{}
	args := []interface{}{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.ClearResetToken {
		add("reset_token_hash", nil)
		add("reset_token_expires", nil)
	} else {
		if patch.ResetTokenHash != nil {
			add("reset_token_hash", *patch.ResetTokenHash)
		}
		if patch.ResetTokenExpires != nil {
			add("reset_token_expires", *patch.ResetTokenExpires)
		}
	}
	if !patch.UpdatedAt.IsZero() {
		add("updated_at", patch.UpdatedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	where := []string{}
	cond := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	cond("id = $%d", id)
	cond("role = $%d", string(role))
	if patch.Guard != nil {
		cond("reset_token_hash = $%d", patch.Guard.TokenHash)
		cond("reset_token_expires > $%d", patch.Guard.ValidAt)
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE users SET %s WHERE %s`, strings.Join(sets, ", "), strings.Join(where, " AND ")),
		args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertClass(ctx context.Context, class model.ScheduledClass) error {
	_, err := s.pool.Exec(ctx, `
    INSERT INTO class_details (id, student_id, mentor_id, subject_name, class_link, class_date, class_time, starts_at,
      student_timezone, mentor_timezone, student_class_date, student_class_time, mentor_class_date, mentor_class_time, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
  `, class.ID, class.StudentID, class.MentorID, class.SubjectName, class.ClassLink, class.ClassDate, class.ClassTime, class.StartsAt,
		class.StudentTimezone, class.MentorTimezone, class.StudentClassDate, class.StudentClassTime, class.MentorClassDate, class.MentorClassTime, class.CreatedAt)
	return mapWriteError(err)
}

func (s *PostgresStore) ListClasses(ctx context.Context, filter model.ClassFilter) ([]model.ScheduledClass, error) {
	rows, err := s.pool.Query(ctx, `
    SELECT id, student_id, mentor_id, subject_name, class_link, class_date, class_time, starts_at,
      student_timezone, mentor_timezone, student_class_date, student_class_time, mentor_class_date, mentor_class_time, created_at
    FROM class_details
    WHERE ($1 = '' OR student_id = $1) AND ($2 = '' OR mentor_id = $2)
    ORDER BY starts_at
  `, filter.StudentID, filter.MentorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []model.ScheduledClass
	for rows.Next() {
		var class model.ScheduledClass
		if err := rows.Scan(&class.ID, &class.StudentID, &class.MentorID, &class.SubjectName, &class.ClassLink, &class.ClassDate, &class.ClassTime, &class.StartsAt,
			&class.StudentTimezone, &class.MentorTimezone, &class.StudentClassDate, &class.StudentClassTime, &class.MentorClassDate, &class.MentorClassTime, &class.CreatedAt); err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func userWhere(query model.UserQuery) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if query.ID != "" {
		add("id::text = $%d", query.ID)
	}
	if query.Email != "" {
		add("email = $%d", query.Email)
	}
	if query.UserID != "" {
		add("user_id = $%d", query.UserID)
	}
	if query.ResetTokenHash != "" {
		add("reset_token_hash = $%d", query.ResetTokenHash)
	}
	if query.ResetExpiresAfter != nil {
		add("reset_token_expires > $%d", *query.ResetExpiresAfter)
	}
	return strings.Join(clauses, " AND "), args
}

func scanUser(row pgx.Row) (model.User, error) {
	var (
		user      model.User
		role      string
		avatarID  *string
		avatarURL *string
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&role,
		&user.UserID,
		&user.PasswordHash,
		&avatarID,
		&avatarURL,
		&user.CountryName,
		&user.Timezone,
		&user.ResetTokenHash,
		&user.ResetTokenExpires,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, err
	}
	user.Role = model.Role(role)
	if avatarURL != nil && *avatarURL != "" {
		user.Avatar = &model.Avatar{URL: *avatarURL}
		if avatarID != nil {
			user.Avatar.ID = *avatarID
		}
	}
	return user, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
