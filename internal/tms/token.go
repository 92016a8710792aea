package tms

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"
)

// Credentials is the login/password/token triple resolved from configuration.
type Credentials struct {
	Login    string
	Password string
	Token    string
}

// TokenSource supplies bearer tokens. Implementations do not cache; callers decide
// how long a token is reused.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a preissued bearer token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("static token is empty")
	}
	return string(t), nil
}

// LoginSource obtains a fresh token from the login endpoint on every call. Concurrent
// callers share one in-flight login.
type LoginSource struct {
	client *Client
	creds  Credentials
	group  singleflight.Group
}

func NewLoginSource(client *Client, creds Credentials) *LoginSource {
	return &LoginSource{client: client, creds: creds}
}

func (s *LoginSource) Token(ctx context.Context) (string, error) {
	v, err, shared := s.group.Do(s.creds.Login, func() (any, error) {
		return s.client.Login(ctx, s.creds.Login, s.creds.Password)
	})
	if err != nil {
		return "", err
	}
	if shared {
		s.client.logger.Debug("tms.login.shared", "login", s.creds.Login)
	}
	return v.(string), nil
}

// NewTokenSource prefers a configured static token and falls back to logging in.
func NewTokenSource(client *Client, creds Credentials) TokenSource {
	if creds.Token != "" {
		return StaticToken(creds.Token)
	}
	return NewLoginSource(client, creds)
}
