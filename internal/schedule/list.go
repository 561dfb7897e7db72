package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
	"github.com/techtuto2024/techtuto-backend/internal/model"
)

type ClassView struct {
	ID               string `json:"_id"`
	StudentID        string `json:"studentId"`
	MentorID         string `json:"mentorId"`
	SubjectName      string `json:"subjectName"`
	ClassLink        string `json:"classLink"`
	ClassDate        string `json:"classDate"`
	ClassTime        string `json:"classTime"`
	StudentTimezone  string `json:"studentTimezone"`
	MentorTimezone   string `json:"mentorTimezone"`
	StudentClassDate string `json:"studentClassDate"`
	StudentClassTime string `json:"studentClassTime"`
	MentorClassDate  string `json:"mentorClassDate"`
	MentorClassTime  string `json:"mentorClassTime"`
	ClassNumber      string `json:"classNumber"`
}

// List returns the matching classes grouped by subject, subjects in order of
// first appearance, each group sorted by start and numbered from 1.
func (s *Service) List(ctx context.Context, filter model.ClassFilter) ([]ClassView, error) {
	filter.StudentID = strings.TrimSpace(filter.StudentID)
	filter.MentorID = strings.TrimSpace(filter.MentorID)
	if filter.StudentID == "" && filter.MentorID == "" {
		return nil, apperr.Validation(apperr.CodeMissingFields, "Please provide either studentId or mentorId")
	}
	classes, err := s.classes.ListClasses(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("could not list classes", err)
	}
	if len(classes) == 0 {
		return nil, apperr.NotFound(apperr.CodeClassesNotFound, "No class details found for the provided ID")
	}

	var subjects []string
	groups := make(map[string][]model.ScheduledClass)
	for _, class := range classes {
		if _, ok := groups[class.SubjectName]; !ok {
			subjects = append(subjects, class.SubjectName)
		}
		groups[class.SubjectName] = append(groups[class.SubjectName], class)
	}

	views := make([]ClassView, 0, len(classes))
	for _, subject := range subjects {
		group := groups[subject]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].StartsAt.Before(group[j].StartsAt)
		})
		for i, class := range group {
			views = append(views, ClassView{
				ID:               class.ID,
				StudentID:        class.StudentID,
				MentorID:         class.MentorID,
				SubjectName:      class.SubjectName,
				ClassLink:        class.ClassLink,
				ClassDate:        class.ClassDate,
				ClassTime:        class.ClassTime,
				StudentTimezone:  class.StudentTimezone,
				MentorTimezone:   class.MentorTimezone,
				StudentClassDate: class.StudentClassDate,
				StudentClassTime: class.StudentClassTime,
				MentorClassDate:  class.MentorClassDate,
				MentorClassTime:  class.MentorClassTime,
				ClassNumber:      fmt.Sprintf("%s Class #%d", subject, i+1),
			})
		}
	}
	return views, nil
}
