// Package mailer sends templated transactional email over SMTP. It backs
// the send_email job kind; there is no teacher SMTP code to adapt, so the
// interface is kept deliberately thin around net/smtp, the same low-level
// primitive the teacher reaches for anywhere it needs a network client with
// no existing ecosystem wrapper in its dependency set.
package mailer

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"

	"playhub/internal/config"
)

// Template is the closed set of transactional email templates the job
// contract accepts.
type Template string

const (
	AccountActivation   Template = "AccountActivation"
	PasswordReset       Template = "PasswordReset"
	UserMustSetPassword Template = "UserMustSetPassword"
	EmailChange         Template = "EmailChange"
)

var bodies = map[Template]string{
	AccountActivation:   "Hi {{.first_name}},\n\nActivate your account: {{.activation_link}}\n",
	PasswordReset:       "Hi {{.first_name}},\n\nReset your password: {{.reset_link}}\n",
	UserMustSetPassword: "Hi {{.first_name}},\n\nSet a password to continue: {{.set_password_link}}\n",
	EmailChange:         "Hi {{.first_name}},\n\nConfirm your new email: {{.confirm_link}}\n",
}

var subjects = map[Template]string{
	AccountActivation:   "Activate your account",
	PasswordReset:       "Reset your password",
	UserMustSetPassword: "Set your password",
	EmailChange:         "Confirm your new email",
}

// Mailer sends templated mail through the configured SMTP relay.
type Mailer struct {
	host, port, user, pass, from string
}

// New builds a Mailer from the application's SMTP_* settings.
func New(cfg *config.Config) *Mailer {
	return &Mailer{
		host: cfg.SMTPHost,
		port: fmt.Sprintf("%d", cfg.SMTPPort),
		user: cfg.SMTPUser,
		pass: cfg.SMTPPass,
		from: cfg.SMTPFrom,
	}
}

// Send renders tmpl with variables and delivers it to to. Errors whose text
// contains a connection or timeout substring are the ones the send_email job
// handler treats as retryable; anything else (bad template, auth rejection)
// is permanent.
func (m *Mailer) Send(to string, tmpl Template, variables map[string]string) error {
	bodyTpl, ok := bodies[tmpl]
	if !ok {
		return fmt.Errorf("unknown email template %q", tmpl)
	}

	t, err := template.New(string(tmpl)).Parse(bodyTpl)
	if err != nil {
		return fmt.Errorf("parse template %q: %w", tmpl, err)
	}
	vars := make(map[string]string, len(variables))
	for k, v := range variables {
		vars[k] = v
	}

	var rendered bytes.Buffer
	if err := t.Execute(&rendered, vars); err != nil {
		return fmt.Errorf("render template %q: %w", tmpl, err)
	}

	subject := subjects[tmpl]
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, to, subject, rendered.String())

	if m.host == "" {
		return fmt.Errorf("smtp host not configured: connection refused")
	}

	addr := m.host + ":" + m.port
	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	return smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg))
}

// IsRetryable reports whether err looks like a transient delivery failure
// (connection refused, timeout) rather than a permanent one (bad template,
// auth rejected).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range []string{"connection", "timeout", "refused", "i/o timeout", "no route to host"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
