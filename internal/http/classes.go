package http

import (
	"net/http"

	"github.com/techtuto2024/techtuto-backend/internal/model"
	"github.com/techtuto2024/techtuto-backend/internal/schedule"
)

func (s *Server) handleSendClassDetails(w http.ResponseWriter, r *http.Request) error {
	var req schedule.Request
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	out, err := s.deps.Schedule.Announce(r.Context(), req)
	if err != nil {
		return err
	}
	message := "Class details sent successfully"
	if !out.Student.Notified || !out.Mentor.Notified {
		message = "Class scheduled, but some notifications could not be sent"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     message,
		"classId":     out.Class.ID,
		"subjectName": out.Class.SubjectName,
		"classLink":   out.Class.ClassLink,
		"student":     out.Student,
		"mentor":      out.Mentor,
	})
	return nil
}

func (s *Server) handleClassDetails(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()
	views, err := s.deps.Schedule.List(r.Context(), model.ClassFilter{
		StudentID: query.Get("studentId"),
		MentorID:  query.Get("mentorId"),
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    views,
	})
	return nil
}
