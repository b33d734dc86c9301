package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/Dan9191/plutus/internal/config"
	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// sendFunc delivers a prepared message
type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   sendFunc
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// SendPaymentReminder sends a repayment reminder email
func (s *Sender) SendPaymentReminder(to, username string, dueDate time.Time, amount decimal.Decimal, isOverdue bool) error {
	e := buildPaymentReminder(s.cfg.SenderEmail, to, username, dueDate, amount, isOverdue)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}

func buildPaymentReminder(from, to, username string, dueDate time.Time, amount decimal.Decimal, isOverdue bool) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = []string{to}
	if isOverdue {
		e.Subject = "Overdue Loan Repayment Notification"
	} else {
		e.Subject = "Upcoming Loan Repayment Reminder"
	}

	body := fmt.Sprintf("Dear %s,\n\n", username)
	if isOverdue {
		body += fmt.Sprintf(
			"Your loan repayment of %s was due on %s and is now overdue.\n"+
				"Please make the payment as soon as possible.\n",
			amount.String(), dueDate.UTC().Format("2006-01-02"),
		)
	} else {
		body += fmt.Sprintf(
			"This is a reminder that your loan repayment of %s is due on %s.\n"+
				"Please ensure sufficient funds are available in your account.\n",
			amount.String(), dueDate.UTC().Format("2006-01-02"),
		)
	}
	body += "\nBest regards,\nPlutus"
	e.Text = []byte(body)
	return e
}
