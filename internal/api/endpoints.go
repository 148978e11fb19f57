package api

import (
	"context"
	"net/http"

	lifecycle "github.com/ovaphlow/pitchfork/client-core-go/internal/lifecycle/entity"
	profile "github.com/ovaphlow/pitchfork/client-core-go/internal/profile/entity"
	session "github.com/ovaphlow/pitchfork/client-core-go/internal/session/entity"
)

// Login posts credentials to /login.
func (c *Client) Login(ctx context.Context, creds session.Credentials) (session.AuthResult, error) {
	var out session.AuthResult
	err := c.do(ctx, call{method: http.MethodPost, path: "/login", body: creds, out: &out, anonymous: true})
	return out, err
}

// Register posts a new account to /register.
func (c *Client) Register(ctx context.Context, reg session.Registration) (session.AuthResult, error) {
	var out session.AuthResult
	err := c.do(ctx, call{method: http.MethodPost, path: "/register", body: reg, out: &out, anonymous: true})
	return out, err
}

// Logout asks the server to invalidate token.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/logout", token: token})
}

// VerifyPassword re-authenticates email/password without touching the
// local session. The token issued by the check is revoked right away.
func (c *Client) VerifyPassword(ctx context.Context, email, password string) error {
	res, err := c.Login(ctx, session.Credentials{Email: email, Password: password})
	if err != nil {
		return err
	}
	if res.Token != "" {
		if err := c.Logout(context.WithoutCancel(ctx), res.Token); err != nil {
			c.logger.Warnw("revoke verification token failed", "err", err)
		}
	}
	return nil
}

// FetchProfile loads the profile record for userID.
func (c *Client) FetchProfile(ctx context.Context, userID string) (profile.Record, error) {
	var out profile.Record
	err := c.do(ctx, call{method: http.MethodGet, path: "/profile/" + pathEscape(userID), out: &out})
	return out, err
}

// UpdateProfile replaces the profile record for userID.
func (c *Client) UpdateProfile(ctx context.Context, userID string, rec profile.Record) (profile.Record, error) {
	var out profile.Record
	err := c.do(ctx, call{method: http.MethodPut, path: "/profile/" + pathEscape(userID), body: rec, out: &out})
	return out, err
}

// CreateAccountRequest files a deactivation or deletion request.
func (c *Client) CreateAccountRequest(ctx context.Context, sub lifecycle.Submission) (lifecycle.Request, error) {
	var out lifecycle.Request
	err := c.do(ctx, call{method: http.MethodPost, path: "/account-request", body: sub, out: &out})
	return out, err
}

// GetAccountRequest loads one request by id.
func (c *Client) GetAccountRequest(ctx context.Context, id string) (lifecycle.Request, error) {
	var out lifecycle.Request
	err := c.do(ctx, call{method: http.MethodGet, path: "/account-request/" + pathEscape(id), out: &out})
	return out, err
}

// SendNotification posts an e-mail to /notifications/send.
func (c *Client) SendNotification(ctx context.Context, msg lifecycle.Message) error {
	cl := call{method: http.MethodPost, path: "/notifications/send", body: msg}
	if msg.IdempotencyKey != "" {
		cl.headers = map[string]string{"Idempotency-Key": msg.IdempotencyKey}
	}
	return c.do(ctx, cl)
}
