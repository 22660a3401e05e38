// internal/service/auth/email.go
package auth

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const sendTimeout = 30 * time.Second

// EmailHelper handles email template generation and sending
type EmailHelper struct {
	notifier Notifier
	logger   *zap.Logger
	baseURL  string
	async    bool
}

func NewEmailHelper(notifier Notifier, logger *zap.Logger, baseURL string) *EmailHelper {
	return &EmailHelper{
		notifier: notifier,
		logger:   logger,
		baseURL:  baseURL,
		async:    true,
	}
}

// Synchronous makes every send finish before the calling flow returns.
func (h *EmailHelper) Synchronous() *EmailHelper {
	h.async = false
	return h
}

func (h *EmailHelper) link(path string, q url.Values) string {
	return fmt.Sprintf("%s%s?%s", h.baseURL, path, q.Encode())
}

func greeting(name string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("<p>Hello %s,</p>", html.EscapeString(name))
}

func button(href, label string) string {
	return fmt.Sprintf(`<p><a href="%s" class="button">%s</a></p>
		<p>Or copy and paste this link into your browser:</p>
		<p><a href="%s">%s</a></p>`, href, label, href, href)
}

// ========== Email Confirmation ==========

func (h *EmailHelper) ConfirmationEmail(name, userID, token string, window time.Duration) (string, string) {
	href := h.link("/confirm-email", url.Values{"userId": {userID}, "token": {token}})

	subject := "Confirm your email - Lovi"
	body := greeting(name) +
		"<p>Thanks for signing up. Please confirm your email address.</p>" +
		button(href, "Confirm Email") +
		fmt.Sprintf("<p>This link expires in %s.</p>", humanize(window))
	return subject, body
}

func (h *EmailHelper) SendConfirmation(to, name, userID, token string, window time.Duration) {
	subject, body := h.ConfirmationEmail(name, userID, token, window)
	h.dispatch("email confirmation", to, subject, body)
}

// ========== Password Reset ==========

func (h *EmailHelper) PasswordResetEmail(name, email, token string, window time.Duration) (string, string) {
	href := h.link("/reset-password", url.Values{"email": {email}, "token": {token}})

	subject := "Password Reset Request - Lovi"
	body := greeting(name) +
		"<p>We received a request to reset your password.</p>" +
		button(href, "Reset Password") +
		fmt.Sprintf("<p>This link expires in %s. If you didn't request this, please ignore this email.</p>", humanize(window))
	return subject, body
}

func (h *EmailHelper) SendPasswordReset(to, name, token string, window time.Duration) {
	subject, body := h.PasswordResetEmail(name, to, token, window)
	h.dispatch("password reset", to, subject, body)
}

func (h *EmailHelper) SendPasswordChanged(to, name string) {
	subject := "Your password was changed - Lovi"
	body := greeting(name) +
		"<p>The password of your account was just changed.</p>" +
		"<p>If this wasn't you, reset your password immediately.</p>"
	h.dispatch("password changed", to, subject, body)
}

// ========== Email Change ==========

func (h *EmailHelper) EmailChangeEmail(name, userID, newEmail, token string, window time.Duration) (string, string) {
	href := h.link("/confirm-change-email", url.Values{"userId": {userID}, "newEmail": {newEmail}, "token": {token}})

	subject := "Confirm your new email - Lovi"
	body := greeting(name) +
		"<p>Please confirm this address to finish changing the email of your account.</p>" +
		button(href, "Confirm New Email") +
		fmt.Sprintf("<p>This link expires in %s.</p>", humanize(window))
	return subject, body
}

func (h *EmailHelper) SendEmailChange(oldEmail, newEmail, name, userID, token string, window time.Duration) {
	subject, body := h.EmailChangeEmail(name, userID, newEmail, token, window)
	h.dispatch("email change confirmation", newEmail, subject, body)

	notice := greeting(name) +
		fmt.Sprintf("<p>A request was made to change the email of your account to %s.</p>", html.EscapeString(newEmail)) +
		"<p>If this wasn't you, change your password immediately.</p>"
	h.dispatch("email change notice", oldEmail, "Email change requested - Lovi", notice)
}

func (h *EmailHelper) SendEmailChanged(oldEmail, newEmail, name string) {
	body := greeting(name) +
		fmt.Sprintf("<p>The email of your account is now %s.</p>", html.EscapeString(newEmail))
	h.dispatch("email changed", oldEmail, "Your email was changed - Lovi", body)
	h.dispatch("email changed", newEmail, "Your email was changed - Lovi", body)
}

// dispatch sends in the background. Failures are logged and never reach
// the caller.
func (h *EmailHelper) dispatch(kind, to, subject, body string) {
	send := func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := h.notifier.Send(ctx, to, subject, body); err != nil {
			h.logger.Error("failed to send email", zap.String("kind", kind), zap.String("email", to), zap.Error(err))
			return
		}
		h.logger.Info("email sent", zap.String("kind", kind), zap.String("email", to))
	}

	if h.async {
		go send()
		return
	}
	send()
}

func humanize(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	}
	return d.String()
}
