package oauth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// TestProvider is a local server which implements just enough of an OAuth
// 2.0 provider (authorization, token, and userinfo endpoints) to make
// writing tests against the authorization code flow much easier. All of its
// knobs are safe to adjust between requests.
type TestProvider struct {
	t          *testing.T
	httpServer *httptest.Server

	mu               sync.Mutex
	expectedCode     string
	expectedVerifier string
	accessToken      string
	refreshToken     string
	omitRefreshToken bool
	expiresIn        int
	scope            string
	profile          Profile
	tokenErrStatus   int
	tokenErrCode     string
	tokenErrDesc     string
	disableUserInfo  bool
	tokenRequests    int
}

// StartTestProvider creates and starts a disposable TestProvider. The
// server is stopped via t.Cleanup.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	p := &TestProvider{
		t:            t,
		expectedCode: "test-authorization-code",
		accessToken:  "test-access-token",
		refreshToken: "test-refresh-token",
		expiresIn:    3600,
		scope:        "openid email profile",
		profile: Profile{
			ID:            "110248495921238986420",
			Email:         "alice@example.com",
			EmailVerified: true,
			Name:          "Alice Doe",
			GivenName:     "Alice",
			FamilyName:    "Doe",
			Picture:       "https://example.com/alice.jpg",
		},
	}
	p.httpServer = httptest.NewServer(p)
	t.Cleanup(p.httpServer.Close)
	return p
}

// Config returns a client Config wired to the test provider's endpoints.
func (p *TestProvider) Config(clientID, redirectURL string) *Config {
	p.t.Helper()
	c, err := NewConfig(clientID, redirectURL,
		WithEndpoints(
			p.httpServer.URL+"/auth",
			p.httpServer.URL+"/token",
			p.httpServer.URL+"/userinfo",
		),
	)
	if err != nil {
		p.t.Fatalf("unable to build test config: %s", err)
	}
	return c
}

// SetExpectedAuthCode configures the authorization code returned from /auth
// and required by /token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedCode = code
}

// SetExpectedVerifier configures the PKCE verifier /token requires in its
// code_verifier parameter. An empty value disables the check.
func (p *TestProvider) SetExpectedVerifier(v *CodeVerifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v == nil {
		p.expectedVerifier = ""
		return
	}
	p.expectedVerifier = v.Verifier()
}

// SetOmitRefreshToken configures whether token responses withhold the
// refresh token, as providers do on repeat consent.
func (p *TestProvider) SetOmitRefreshToken(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = omit
}

// SetExpiresIn configures the expires_in seconds of token responses.
func (p *TestProvider) SetExpiresIn(seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiresIn = seconds
}

// SetTokenError configures /token to fail with the given status and OAuth
// error body. A zero status restores success responses.
func (p *TestProvider) SetTokenError(status int, code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenErrStatus = status
	p.tokenErrCode = code
	p.tokenErrDesc = description
}

// SetUserInfoReply configures the profile /userinfo returns.
func (p *TestProvider) SetUserInfoReply(profile Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profile = profile
}

// SetDisableUserInfo makes /userinfo fail with a server_error body.
func (p *TestProvider) SetDisableUserInfo(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = disable
}

// TokenRequests returns the number of requests /token has served.
func (p *TestProvider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// ServeHTTP implements the http.Handler interface for the test provider.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch req.URL.Path {
	case "/auth":
		p.serveAuth(w, req)
	case "/token":
		p.tokenRequests++
		p.serveToken(w, req)
	case "/userinfo":
		p.serveUserInfo(w, req)
	default:
		http.NotFound(w, req)
	}
}

// serveAuth skips the consent screen and immediately redirects back to the
// client's redirect_uri with the expected code and the echoed state.
func (p *TestProvider) serveAuth(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" {
		http.Error(w, "redirect_uri is required", http.StatusBadRequest)
		return
	}
	u, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "redirect_uri is invalid", http.StatusBadRequest)
		return
	}
	cb := u.Query()
	cb.Set("code", p.expectedCode)
	cb.Set("state", q.Get("state"))
	u.RawQuery = cb.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}

func (p *TestProvider) serveToken(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "unable to parse form")
		return
	}
	if p.tokenErrStatus != 0 {
		writeOAuthError(w, p.tokenErrStatus, p.tokenErrCode, p.tokenErrDesc)
		return
	}
	switch req.PostFormValue("grant_type") {
	case "authorization_code":
		if req.PostFormValue("code") != p.expectedCode {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown authorization code")
			return
		}
		if p.expectedVerifier != "" && req.PostFormValue("code_verifier") != p.expectedVerifier {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code verifier mismatch")
			return
		}
	case "refresh_token":
		if req.PostFormValue("refresh_token") != p.refreshToken {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown refresh token")
			return
		}
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "")
		return
	}
	reply := map[string]interface{}{
		"access_token": p.accessToken,
		"token_type":   "Bearer",
		"expires_in":   p.expiresIn,
		"scope":        p.scope,
	}
	if !p.omitRefreshToken {
		reply["refresh_token"] = p.refreshToken
	}
	writeJSON(w, http.StatusOK, reply)
}

func (p *TestProvider) serveUserInfo(w http.ResponseWriter, req *http.Request) {
	if p.disableUserInfo {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "userinfo is disabled")
		return
	}
	if req.Header.Get("Authorization") != fmt.Sprintf("Bearer %s", p.accessToken) {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "bearer token is unknown")
		return
	}
	writeJSON(w, http.StatusOK, p.profile)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	reply := map[string]string{"error": code}
	if description != "" {
		reply["error_description"] = description
	}
	writeJSON(w, status, reply)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
