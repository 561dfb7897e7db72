package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
	"gopkg.in/gomail.v2"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
)

const DefaultSendTimeout = 10 * time.Second

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
	// Timeout bounds one send independently of the caller's deadline.
	Timeout time.Duration
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type SMTPMailer struct {
	cfg     SMTPConfig
	send    func(...*gomail.Message) error
	timeout time.Duration
	logger  *slog.Logger
}

func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &SMTPMailer{
		cfg:     cfg,
		send:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass).DialAndSend,
		timeout: timeout,
		logger:  logger,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return apperr.Wrap(apperr.KindInternal, apperr.CodeSendError, "Failed to send email", errors.New("empty recipient"))
	}
	gm, err := buildMessage(m.cfg.From, msg)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, apperr.CodeSendError, "Failed to send email", err)
	}

	// gomail cannot be cancelled, so the wait is bounded by the mailer's
	// own timeout rather than the request's. Past it the outcome is unknown.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.send(gm) }()
	select {
	case err = <-done:
	case <-sendCtx.Done():
		m.logger.Warn("email send still in flight", slog.String("to", msg.To), slog.Duration("timeout", m.timeout))
		err = fmt.Errorf("%w after %s", ErrUnconfirmed, m.timeout)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, apperr.CodeSendError, "Failed to send email", err)
	}
	m.logger.Info("email sent", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}

func buildMessage(from string, msg Message) (*gomail.Message, error) {
	gm := gomail.NewMessage()
	gm.SetHeader("From", from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	if !msg.HTML {
		gm.SetBody("text/plain", msg.Body)
		return gm, nil
	}
	plain, err := html2text.FromString(msg.Body, html2text.Options{OmitLinks: false})
	if err != nil {
		return nil, err
	}
	gm.SetBody("text/plain", plain)
	gm.AddAlternative("text/html", msg.Body)
	return gm, nil
}
