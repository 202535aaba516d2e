package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

const smtpTimeout = 15 * time.Second

// SMTPSender sends OTP email via an SMTP server using STARTTLS.
type SMTPSender struct {
	Host     string
	Port     int
	Username string // also the From address
	Password string
	// OTPTTL is mentioned in the message body so recipients know the validity window.
	OTPTTL time.Duration
}

// NewSMTPSender returns a sender for the given SMTP server. username is used
// as the From address.
func NewSMTPSender(host string, port int, username, password string, otpTTL time.Duration) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, Username: username, Password: password, OTPTTL: otpTTL}
}

// SendOTP sends the code to the given email address. The connection is
// bounded by ctx and an overall timeout; the code is never logged.
func (s *SMTPSender) SendOTP(ctx context.Context, recipient, code, purpose string) error {
	if s.Host == "" || s.Username == "" {
		return fmt.Errorf("smtp: not configured")
	}

	subject := fmt.Sprintf("Your OTP Code for %s", titleCase(purpose))
	body := fmt.Sprintf(
		"Your OTP code is: %s\r\n\r\n"+
			"This code will expire in %d minutes.\r\n"+
			"If you didn't request this code, please ignore this email.\r\n",
		code, int(s.OTPTTL.Minutes()))
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.Username, recipient, subject, body)

	ctx, cancel := context.WithTimeout(ctx, smtpTimeout)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(s.Username); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := c.Rcpt(recipient); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
