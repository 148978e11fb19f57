package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/api"
)

var (
	ErrNotAuthenticated   = errors.New("session: not authenticated")
	ErrIdentityMismatch   = errors.New("session: patch targets a different identity")
	ErrMissingCredentials = errors.New("session: email and password are required")
	ErrMalformedAuth      = errors.New("session: auth response lacks user or token")
	ErrCorruptSnapshot    = errors.New("session: durable record is corrupt")
	ErrExpiredToken       = errors.New("session: stored token has expired")
)

// AuthErrorKind classifies a failed login or registration.
type AuthErrorKind string

const (
	AuthInvalidCredentials AuthErrorKind = "invalid-credentials"
	AuthNetwork            AuthErrorKind = "network"
	AuthAccountBlocked     AuthErrorKind = "account-blocked"
)

// AuthError is the only error Login and Register return.
type AuthError struct {
	Kind AuthErrorKind
	// Reason is the server's explanation for a blocked account and must be
	// shown to the user as is.
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("auth %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("auth %s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UserMessage is the text to display for this error.
func (e *AuthError) UserMessage() string {
	switch e.Kind {
	case AuthAccountBlocked:
		if e.Reason != "" {
			return e.Reason
		}
		return "Your account has been blocked."
	case AuthInvalidCredentials:
		return "Incorrect email or password."
	default:
		return "We could not reach the server. Please try again."
	}
}

// classifyAuthError converts an API failure into an *AuthError.
func classifyAuthError(err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, api.ErrTransport) {
		return &AuthError{Kind: AuthNetwork, Err: err}
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusForbidden:
			reason := apiErr.Reason
			if reason == "" {
				reason = apiErr.Message
			}
			return &AuthError{Kind: AuthAccountBlocked, Reason: reason, Err: err}
		case apiErr.Status >= 400 && apiErr.Status < 500:
			return &AuthError{Kind: AuthInvalidCredentials, Err: err}
		}
	}
	return &AuthError{Kind: AuthNetwork, Err: err}
}
