// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package sampleapp

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/confidential"
	"github.com/kylelemons/godebug/pretty"
)

const authorizeEndpoint = "https://fs.contoso.com/adfs/oauth2/authorize/"

type fakeClient struct {
	urlErr   error
	tokenErr error
	username string

	urlOpts     int
	redeemed    string
	redirectURI string
	scopes      []string
}

func (f *fakeClient) AuthCodeURL(ctx context.Context, clientID, redirectURI string, scopes []string, opts ...confidential.AuthCodeURLOption) (string, error) {
	f.urlOpts = len(opts)
	if f.urlErr != nil {
		return "", f.urlErr
	}
	v := url.Values{
		"client_id":     []string{clientID},
		"redirect_uri":  []string{redirectURI},
		"response_type": []string{"code"},
		"scope":         []string{strings.Join(scopes, " ")},
	}
	return authorizeEndpoint + "?" + v.Encode(), nil
}

func (f *fakeClient) AcquireTokenByAuthCode(ctx context.Context, code string, redirectURI string, scopes []string, opts ...confidential.AcquireByAuthCodeOption) (confidential.AuthResult, error) {
	f.redeemed = code
	f.redirectURI = redirectURI
	f.scopes = scopes
	if f.tokenErr != nil {
		return confidential.AuthResult{}, f.tokenErr
	}
	return confidential.AuthResult{
		AccessToken: "access",
		Account:     confidential.Account{PreferredUsername: f.username},
	}, nil
}

func newTestServer(t *testing.T, client *fakeClient) *Server {
	t.Helper()
	s, err := New(client, Options{
		ClientID:    "client",
		RedirectURI: "http://localhost:3000/redirect",
		Scopes:      []string{"user.read"},
	})
	if err != nil {
		t.Fatalf("New(): got err == %s, want err == nil", err)
	}
	return s
}

func TestNew(t *testing.T) {
	tests := []struct {
		desc    string
		client  AuthClient
		opts    Options
		wantErr bool
	}{
		{desc: "ok", client: &fakeClient{}, opts: Options{ClientID: "c", RedirectURI: "http://localhost:3000/redirect"}},
		{desc: "nil client", opts: Options{ClientID: "c", RedirectURI: "http://localhost:3000/redirect"}, wantErr: true},
		{desc: "no client id", client: &fakeClient{}, opts: Options{RedirectURI: "http://localhost:3000/redirect"}, wantErr: true},
		{desc: "relative redirect", client: &fakeClient{}, opts: Options{ClientID: "c", RedirectURI: "/redirect"}, wantErr: true},
		{desc: "root redirect", client: &fakeClient{}, opts: Options{ClientID: "c", RedirectURI: "http://localhost:3000/"}, wantErr: true},
	}
	for _, test := range tests {
		_, err := New(test.client, test.opts)
		switch {
		case err == nil && test.wantErr:
			t.Errorf("TestNew(%s): got err == nil, want err != nil", test.desc)
		case err != nil && !test.wantErr:
			t.Errorf("TestNew(%s): got err == %s, want err == nil", test.desc, err)
		}
	}
}

func TestSignIn(t *testing.T) {
	tests := []struct {
		desc       string
		query      string
		wantPrompt string
		wantState  string
		wantOpts   int
	}{
		{desc: "home", query: ""},
		{desc: "prompt login", query: "prompt=login", wantPrompt: "login"},
		{desc: "prompt consent", query: "prompt=consent", wantPrompt: "consent"},
		{desc: "prompt none", query: "prompt=none", wantPrompt: "none"},
		{desc: "state", query: "prompt=login&state=value_on_state", wantPrompt: "login", wantState: "value_on_state"},
		{desc: "login hint", query: "prompt=login&loginHint=test@domain.abc", wantPrompt: "login", wantOpts: 1},
		{desc: "domain hint", query: "domainHint=microsoft.com", wantOpts: 1},
		{desc: "both hints", query: "loginHint=a@b.c&domainHint=b.c", wantOpts: 2},
	}

	for _, test := range tests {
		client := &fakeClient{}
		s := newTestServer(t, client)

		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?"+test.query, nil))

		if rec.Code != http.StatusFound {
			t.Errorf("TestSignIn(%s): got status %d, want %d", test.desc, rec.Code, http.StatusFound)
			continue
		}
		loc, err := url.Parse(rec.Header().Get("Location"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(loc.String(), authorizeEndpoint) {
			t.Errorf("TestSignIn(%s): redirected to %s, want %s", test.desc, loc, authorizeEndpoint)
		}
		q := loc.Query()
		if got := q.Get("prompt"); got != test.wantPrompt {
			t.Errorf("TestSignIn(%s): prompt: got %q, want %q", test.desc, got, test.wantPrompt)
		}
		if q.Get("client_id") != "client" || q.Get("redirect_uri") != "http://localhost:3000/redirect" {
			t.Errorf("TestSignIn(%s): authorize URL lost MSAL's parameters: %s", test.desc, loc)
		}
		state := q.Get("state")
		switch {
		case state == "":
			t.Errorf("TestSignIn(%s): no state on authorize URL", test.desc)
		case test.wantState != "" && state != test.wantState:
			t.Errorf("TestSignIn(%s): state: got %q, want %q", test.desc, state, test.wantState)
		}
		if client.urlOpts != test.wantOpts {
			t.Errorf("TestSignIn(%s): got %d AuthCodeURL options, want %d", test.desc, client.urlOpts, test.wantOpts)
		}

		var cookie *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == StateCookie {
				cookie = c
			}
		}
		if cookie == nil || cookie.Value != state || !cookie.HttpOnly {
			t.Errorf("TestSignIn(%s): got state cookie %+v, want HttpOnly cookie with %q", test.desc, cookie, state)
		}
	}
}

func TestSignInGeneratedStateIsUnique(t *testing.T) {
	s := newTestServer(t, &fakeClient{})
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		loc, err := url.Parse(rec.Header().Get("Location"))
		if err != nil {
			t.Fatal(err)
		}
		state := loc.Query().Get("state")
		if seen[state] {
			t.Fatalf("TestSignInGeneratedStateIsUnique: state %q generated twice", state)
		}
		seen[state] = true
	}
}

func TestSignInErrors(t *testing.T) {
	s := newTestServer(t, &fakeClient{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?prompt=always", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("TestSignInErrors(bad prompt): got status %d, want %d", rec.Code, http.StatusBadRequest)
	}

	s = newTestServer(t, &fakeClient{urlErr: errors.New("endpoint resolution failed")})
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("TestSignInErrors(AuthCodeURL): got status %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("TestSignInErrors(POST): got status %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestRedirect(t *testing.T) {
	tests := []struct {
		desc       string
		query      url.Values
		cookie     string
		tokenErr   error
		statusCode int
		wantBody   string
		redeemed   string
	}{
		{
			desc:       "Success",
			query:      url.Values{"state": []string{"value_on_state"}, "code": []string{"abc"}},
			cookie:     "value_on_state",
			statusCode: http.StatusOK,
			wantBody:   "OK",
			redeemed:   "abc",
		},
		{
			desc:       "Error: authority returned an error",
			query:      url.Values{"state": []string{"s"}, "error": []string{"access_denied"}, "error_description": []string{"<script>"}},
			cookie:     "s",
			statusCode: http.StatusOK,
			wantBody:   "&lt;script&gt;",
		},
		{
			desc:       "Error: missing state",
			query:      url.Values{"code": []string{"abc"}},
			cookie:     "s",
			statusCode: http.StatusInternalServerError,
			wantBody:   "didn't send OAuth state",
		},
		{
			desc:       "Error: mismatched state",
			query:      url.Values{"state": []string{"etats"}, "code": []string{"abc"}},
			cookie:     "state",
			statusCode: http.StatusInternalServerError,
			wantBody:   "mismatched OAuth state",
		},
		{
			desc:       "Error: no state cookie",
			query:      url.Values{"state": []string{"state"}, "code": []string{"abc"}},
			statusCode: http.StatusInternalServerError,
			wantBody:   "mismatched OAuth state",
		},
		{
			desc:       "Error: missing code",
			query:      url.Values{"state": []string{"s"}},
			cookie:     "s",
			statusCode: http.StatusInternalServerError,
			wantBody:   "authorization code missing",
		},
		{
			desc:       "Error: redemption failed",
			query:      url.Values{"state": []string{"s"}, "code": []string{"abc"}},
			cookie:     "s",
			tokenErr:   errors.New("invalid_grant"),
			statusCode: http.StatusInternalServerError,
			wantBody:   "invalid_grant",
			redeemed:   "abc",
		},
	}

	for _, test := range tests {
		client := &fakeClient{tokenErr: test.tokenErr, username: "fed@contoso.com"}
		s := newTestServer(t, client)

		req := httptest.NewRequest(http.MethodGet, "/redirect?"+test.query.Encode(), nil)
		if test.cookie != "" {
			req.AddCookie(&http.Cookie{Name: StateCookie, Value: test.cookie})
		}
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != test.statusCode {
			t.Errorf("TestRedirect(%s): got status %d, want %d", test.desc, rec.Code, test.statusCode)
		}
		body := rec.Body.String()
		if !strings.Contains(body, test.wantBody) {
			t.Errorf("TestRedirect(%s): body %q does not contain %q", test.desc, body, test.wantBody)
		}
		if test.statusCode != http.StatusOK || test.wantBody != "OK" {
			if strings.Contains(body, "OK") {
				t.Errorf("TestRedirect(%s): failure body contains the success marker: %q", test.desc, body)
			}
		}
		if client.redeemed != test.redeemed {
			t.Errorf("TestRedirect(%s): redeemed code %q, want %q", test.desc, client.redeemed, test.redeemed)
		}
	}
}

func TestRedirectSuccessPage(t *testing.T) {
	client := &fakeClient{username: "fed@contoso.com"}
	s := newTestServer(t, client)

	req := httptest.NewRequest(http.MethodGet, "/redirect?code=abc&state=s", nil)
	req.AddCookie(&http.Cookie{Name: StateCookie, Value: "s"})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `<span id="username">fed@contoso.com</span>`) {
		t.Errorf("TestRedirectSuccessPage: username missing from %q", rec.Body.String())
	}
	if diff := pretty.Compare([]string{"user.read"}, client.scopes); diff != "" {
		t.Errorf("TestRedirectSuccessPage: scopes -want/+got:\n%s", diff)
	}
	if client.redirectURI != "http://localhost:3000/redirect" {
		t.Errorf("TestRedirectSuccessPage: redeemed with redirect URI %q", client.redirectURI)
	}
}

func TestServe(t *testing.T) {
	client := &fakeClient{}
	s := newTestServer(t, client)

	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	httpClient := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		Timeout:       5 * time.Second,
	}
	resp, err := httpClient.Get("http://" + l.Addr().String() + "/?prompt=login")
	if err != nil {
		t.Fatalf("TestServe: GET /: %s", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("TestServe: got status %d, want %d", resp.StatusCode, http.StatusFound)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("TestServe: Serve() returned %s after cancel, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("TestServe: Serve() did not return after cancel")
	}
}
