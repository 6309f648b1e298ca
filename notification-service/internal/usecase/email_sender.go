package usecase

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/director74/macro_saga/notification-service/config"
)

// Email письмо в текстовом виде
type Email struct {
	From    string
	To      string
	Subject string
	Body    string
}

// EmailSender интерфейс для отправки электронной почты
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// NewEmailSender выбирает отправщика по MAIL_DRIVER
func NewEmailSender(cfg config.MailConfig, logger zerolog.Logger) (EmailSender, error) {
	switch cfg.Driver {
	case "smtp":
		return NewSmtpEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword), nil
	case "dummy", "":
		return NewDummyEmailSender(logger), nil
	default:
		return nil, fmt.Errorf("неизвестный MAIL_DRIVER %q", cfg.Driver)
	}
}

// DummyEmailSender заглушка для отправки email
type DummyEmailSender struct {
	logger zerolog.Logger
}

func NewDummyEmailSender(logger zerolog.Logger) *DummyEmailSender {
	return &DummyEmailSender{logger: logger}
}

// Send в заглушке просто логирует письмо
func (s *DummyEmailSender) Send(ctx context.Context, email Email) error {
	s.logger.Info().Str("from", email.From).Str("to", email.To).Str("subject", email.Subject).
		Msg("Отправка email")
	return nil
}

// SmtpEmailSender отправщик email через SMTP
type SmtpEmailSender struct {
	addr string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSmtpEmailSender(host, port, user, password string) *SmtpEmailSender {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &SmtpEmailSender{
		addr: net.JoinHostPort(host, port),
		auth: auth,
		send: smtp.SendMail,
	}
}

func (s *SmtpEmailSender) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.send(s.addr, s.auth, email.From, []string{email.To}, buildMessage(email)); err != nil {
		return fmt.Errorf("ошибка отправки письма на %s: %w", email.To, err)
	}
	return nil
}

// buildMessage заголовки и тело письма, тема кодируется для не-ASCII символов
func buildMessage(email Email) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + email.From + "\r\n")
	sb.WriteString("To: " + email.To + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", email.Subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(email.Body, "\n", "\r\n"))
	return []byte(sb.String())
}
