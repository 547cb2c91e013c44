package superset

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Credential methods.
const (
	MethodPassword = "password"
	MethodAPIKey   = "api-key"
)

// Credential is a short-lived session credential for the Superset API. It is
// held in process memory for the duration of one workflow and never persisted.
type Credential struct {
	Method    string
	Token     string
	CSRFToken string
	ExpiresAt time.Time
}

// Expired reports whether the credential is past its known expiry. API-key
// credentials have no expiry and never report true.
func (c *Credential) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// Authenticator obtains credentials for the Superset API. Password-based
// login exchanges username/password for an access token at the security
// endpoint; key-based auth wraps the configured key with no network call.
// The authenticator never retries; callers re-invoke it if they want another
// attempt.
type Authenticator struct {
	baseURL  string
	apiKey   string
	username string
	password string
	client   *resty.Client
}

// AuthConfig configures an Authenticator.
type AuthConfig struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string
	Timeout  time.Duration
}

// loginResponse is the body of a successful /security/login call.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	Result      struct {
		AccessToken string `json:"access_token"`
	} `json:"result"`
}

type csrfResponse struct {
	Result string `json:"result"`
}

// Sessions issued by Superset's default JWT config last well under an hour;
// a conservative local expiry avoids presenting a token the server will
// reject mid-workflow.
const defaultTokenLifetime = 30 * time.Minute

// NewAuthenticator creates an Authenticator for the given server.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	return &Authenticator{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		username: cfg.Username,
		password: cfg.Password,
		client:   client,
	}
}

// Authenticate obtains a credential. With an API key configured this is a
// pure wrap; otherwise it performs the password login and a best-effort CSRF
// token fetch (mutating endpoints require the CSRF header on servers with
// WTF_CSRF enabled, and ignore it elsewhere).
func (a *Authenticator) Authenticate(ctx context.Context) (*Credential, error) {
	if a.apiKey != "" {
		return &Credential{Method: MethodAPIKey, Token: a.apiKey}, nil
	}

	if a.username == "" || a.password == "" {
		return nil, &AuthError{Reason: "no API key or username/password configured"}
	}

	var login loginResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"username": a.username,
			"password": a.password,
			"provider": "db",
			"refresh":  true,
		}).
		SetResult(&login).
		Post(a.baseURL + "/api/v1/security/login")

	if err != nil {
		return nil, &AuthError{Reason: err.Error()}
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &AuthError{StatusCode: resp.StatusCode(), Reason: resp.String()}
	}

	token := login.AccessToken
	if token == "" {
		token = login.Result.AccessToken
	}
	if token == "" {
		return nil, &AuthError{StatusCode: resp.StatusCode(), Reason: "response contained no access_token"}
	}

	cred := &Credential{
		Method:    MethodPassword,
		Token:     token,
		ExpiresAt: time.Now().Add(defaultTokenLifetime),
	}

	// CSRF fetch failure is not fatal: servers without CSRF protection do
	// not expose the endpoint.
	if csrf, err := a.fetchCSRFToken(ctx, token); err == nil {
		cred.CSRFToken = csrf
	}

	return cred, nil
}

func (a *Authenticator) fetchCSRFToken(ctx context.Context, token string) (string, error) {
	var body csrfResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetResult(&body).
		Get(a.baseURL + "/api/v1/security/csrf_token/")

	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode(), Endpoint: "/api/v1/security/csrf_token/", Body: resp.String()}
	}
	return body.Result, nil
}
