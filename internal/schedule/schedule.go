package schedule

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
	"github.com/techtuto2024/techtuto-backend/internal/metrics"
	"github.com/techtuto2024/techtuto-backend/internal/model"
	"github.com/techtuto2024/techtuto-backend/internal/notify"
	"github.com/techtuto2024/techtuto-backend/internal/repository"
)

type Directory interface {
	FindByUserID(ctx context.Context, userID string) (model.User, error)
}

type Request struct {
	StudentID   string `json:"studentId" validate:"required"`
	MentorID    string `json:"mentorId" validate:"required"`
	SubjectName string `json:"subjectName" validate:"required,max=100"`
	ClassLink   string `json:"classLink" validate:"required,url"`
	ClassDate   string `json:"classDate" validate:"required"`
	ClassTime   string `json:"classTime" validate:"required"`
}

type Participant struct {
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Local       LocalView `json:"local"`
	Notified    bool      `json:"notified"`
	NotifyError string    `json:"notifyError,omitempty"`
}

type Announcement struct {
	Class   model.ScheduledClass `json:"-"`
	Student Participant          `json:"student"`
	Mentor  Participant          `json:"mentor"`
}

type Service struct {
	dir      Directory
	classes  repository.ClassStore
	mailer   notify.Mailer
	renderer *notify.Renderer
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewService(dir Directory, classes repository.ClassStore, mailer notify.Mailer, renderer *notify.Renderer, logger *slog.Logger) *Service {
	return &Service{
		dir:      dir,
		classes:  classes,
		mailer:   mailer,
		renderer: renderer,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Announce records a class and emails both participants their local time.
// The record is written before any mail goes out; a failed send is reported
// on the participant and does not fail the call.
func (s *Service) Announce(ctx context.Context, req Request) (Announcement, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.MentorID = strings.TrimSpace(req.MentorID)
	req.SubjectName = strings.TrimSpace(req.SubjectName)
	req.ClassLink = strings.TrimSpace(req.ClassLink)
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && fieldErrs[0].Field() == "ClassLink" && fieldErrs[0].Tag() == "url" {
			return Announcement{}, apperr.Validation(apperr.CodeInvalidRequest, "Class link must be a valid URL")
		}
		return Announcement{}, apperr.Validation(apperr.CodeMissingFields, "Please enter all details")
	}
	instant, err := ParseInput(req.ClassDate, req.ClassTime)
	if err != nil {
		return Announcement{}, err
	}

	student, err := s.participant(ctx, req.StudentID, model.RoleStudent, apperr.CodeStudentNotFound, "Student not found")
	if err != nil {
		return Announcement{}, err
	}
	mentor, err := s.participant(ctx, req.MentorID, model.RoleMentor, apperr.CodeMentorNotFound, "Mentor not found")
	if err != nil {
		return Announcement{}, err
	}

	studentLoc := ResolveLocation(student.Timezone)
	mentorLoc := ResolveLocation(mentor.Timezone)
	studentView := Localize(instant, studentLoc)
	mentorView := Localize(instant, mentorLoc)

	class := model.ScheduledClass{
		ID:               uuid.NewString(),
		StudentID:        student.UserID,
		MentorID:         mentor.UserID,
		SubjectName:      req.SubjectName,
		ClassLink:        req.ClassLink,
		ClassDate:        strings.TrimSpace(req.ClassDate),
		ClassTime:        strings.TrimSpace(req.ClassTime),
		StartsAt:         instant.UTC(),
		StudentTimezone:  studentLoc.String(),
		MentorTimezone:   mentorLoc.String(),
		StudentClassDate: studentView.Date,
		StudentClassTime: studentView.Time,
		MentorClassDate:  mentorView.Date,
		MentorClassTime:  mentorView.Time,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.classes.InsertClass(ctx, class); err != nil {
		return Announcement{}, apperr.Internal("could not store class", err)
	}
	metrics.ClassesAnnounced.Inc()

	out := Announcement{
		Class:   class,
		Student: Participant{UserID: student.UserID, Name: student.Name, Email: student.Email, Local: studentView},
		Mentor:  Participant{UserID: mentor.UserID, Name: mentor.Name, Email: mentor.Email, Local: mentorView},
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.notifyParticipant(ctx, &out.Student, class, mentor.Name)
	}()
	go func() {
		defer wg.Done()
		s.notifyParticipant(ctx, &out.Mentor, class, student.Name)
	}()
	wg.Wait()

	return out, nil
}

func (s *Service) participant(ctx context.Context, userID string, role model.Role, code, message string) (model.User, error) {
	user, err := s.dir.FindByUserID(ctx, userID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return model.User{}, apperr.NotFound(code, message)
		}
		return model.User{}, err
	}
	if user.Role != role {
		return model.User{}, apperr.NotFound(code, message)
	}
	return user, nil
}

func (s *Service) notifyParticipant(ctx context.Context, p *Participant, class model.ScheduledClass, counterpart string) {
	msg, err := s.renderer.Render(notify.ClassScheduled, p.Email, map[string]string{
		"name":        p.Name,
		"counterpart": counterpart,
		"subjectName": class.SubjectName,
		"classLink":   class.ClassLink,
		"classDate":   p.Local.Date,
		"classTime":   p.Local.Time,
		"zone":        p.Local.Zone,
		"timezone":    p.Local.Timezone,
	})
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	metrics.EmailsSent.WithLabelValues(string(notify.ClassScheduled), metrics.Result(err)).Inc()
	if err != nil {
		s.logger.Error("class notification failed",
			slog.String("class_id", class.ID),
			slog.String("user_id", p.UserID),
			slog.Any("err", err),
		)
		p.NotifyError = err.Error()
		return
	}
	p.Notified = true
}
