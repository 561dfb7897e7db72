package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

type Template string

const (
	Welcome        Template = "welcome"
	ClassScheduled Template = "class_scheduled"
	PasswordReset  Template = "password_reset"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[Template]string{
	Welcome:        "Welcome to TechTuto, {{.name}}!",
	ClassScheduled: "Your {{.subjectName}} class is scheduled",
	PasswordReset:  "TechTuto password recovery",
}

// Renderer turns a named template and flat data into a ready Message.
type Renderer struct {
	bodies   *htmltemplate.Template
	subjects map[Template]*texttemplate.Template
}

func NewRenderer() (*Renderer, error) {
	bodies, err := htmltemplate.New("").Option("missingkey=zero").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	r := &Renderer{bodies: bodies, subjects: make(map[Template]*texttemplate.Template, len(subjects))}
	for name, text := range subjects {
		tmpl, err := texttemplate.New(string(name)).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse subject %s: %w", name, err)
		}
		r.subjects[name] = tmpl
	}
	return r, nil
}

func (r *Renderer) Render(name Template, to string, data map[string]string) (Message, error) {
	subject, ok := r.subjects[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown mail template %q", name)
	}
	var subjectBuf, bodyBuf bytes.Buffer
	if err := subject.Execute(&subjectBuf, data); err != nil {
		return Message{}, fmt.Errorf("render subject %s: %w", name, err)
	}
	if err := r.bodies.ExecuteTemplate(&bodyBuf, string(name)+".html", data); err != nil {
		return Message{}, fmt.Errorf("render body %s: %w", name, err)
	}
	return Message{
		To:      to,
		Subject: subjectBuf.String(),
		Body:    bodyBuf.String(),
		HTML:    true,
	}, nil
}
