// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package sampleapp is a small web app that signs a user in with the OAuth2 authorization code flow.

GET / redirects the browser to the authority's authorize endpoint. It accepts the optional query
parameters prompt, state, loginHint and domainHint. The authority sends the browser back to the
redirect URI, where the code is redeemed and a page containing "OK" is rendered on success.
Tokens land in whatever cache accessor the MSAL client was created with; the end-to-end suites
inspect that cache after each sign-in.
*/
package sampleapp

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/confidential"
	"github.com/google/uuid"
)

// StateCookie holds the state value the app expects back on the redirect.
const StateCookie = "msal_e2e_state"

// prompts are the prompt values passed through to the authority.
var prompts = map[string]bool{
	"":               true,
	"login":          true,
	"consent":        true,
	"none":           true,
	"select_account": true,
}

var okPage = template.Must(template.New("ok").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8" />
    <title>Authentication Complete</title>
</head>
<body>
    <p>OK</p>
    <p>Signed in as <span id="username">{{.Username}}</span></p>
</body>
</html>
`))

var failPage = template.Must(template.New("fail").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8" />
    <title>Authentication Failed</title>
</head>
<body>
    <p>Authentication failed.</p>
    <p>Error details: error {{.Code}}, error description: {{.Description}}</p>
</body>
</html>
`))

// AuthClient is the part of confidential.Client the app uses.
type AuthClient interface {
	AuthCodeURL(ctx context.Context, clientID, redirectURI string, scopes []string, opts ...confidential.AuthCodeURLOption) (string, error)
	AcquireTokenByAuthCode(ctx context.Context, code string, redirectURI string, scopes []string, opts ...confidential.AcquireByAuthCodeOption) (confidential.AuthResult, error)
}

// Options configures a Server.
type Options struct {
	// ClientID is the application (client) ID registered with the authority.
	ClientID string
	// RedirectURI is registered with the authority. Its path is where the app receives the code.
	RedirectURI string
	Scopes      []string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server serves the sample app.
type Server struct {
	client       AuthClient
	opts         Options
	redirectPath string
	log          *slog.Logger
	mux          *http.ServeMux
}

// New creates a Server around client.
func New(client AuthClient, opts Options) (*Server, error) {
	if client == nil {
		return nil, errors.New("sampleapp: client is nil")
	}
	if opts.ClientID == "" {
		return nil, errors.New("sampleapp: ClientID is required")
	}
	u, err := url.Parse(opts.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("sampleapp: RedirectURI is invalid: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("sampleapp: RedirectURI %q must be absolute", opts.RedirectURI)
	}
	path := u.Path
	if path == "" || path == "/" {
		return nil, fmt.Errorf("sampleapp: RedirectURI %q must have a path other than /", opts.RedirectURI)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		client:       client,
		opts:         opts,
		redirectPath: path,
		log:          opts.Logger,
		mux:          http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.signIn)
	s.mux.HandleFunc("GET "+path, s.redirect)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done, then shuts the server down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(l)
	}()
	s.log.Info("sample app listening", slog.String("addr", l.Addr().String()), slog.String("redirectURI", s.opts.RedirectURI))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// signIn sends the browser to the authority.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	prompt := q.Get("prompt")
	if !prompts[prompt] {
		http.Error(w, fmt.Sprintf("unsupported prompt %q", prompt), http.StatusBadRequest)
		return
	}
	state := q.Get("state")
	if state == "" {
		state = uuid.NewString()
	}

	var opts []confidential.AuthCodeURLOption
	if hint := q.Get("loginHint"); hint != "" {
		opts = append(opts, confidential.WithLoginHint(hint))
	}
	if hint := q.Get("domainHint"); hint != "" {
		opts = append(opts, confidential.WithDomainHint(hint))
	}

	authURL, err := s.client.AuthCodeURL(r.Context(), s.opts.ClientID, s.opts.RedirectURI, s.opts.Scopes, opts...)
	if err != nil {
		s.log.Error("could not build authorize URL", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	u, err := url.Parse(authURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	v := u.Query()
	if prompt != "" {
		v.Set("prompt", prompt)
	}
	v.Set("state", state)
	u.RawQuery = v.Encode()

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.log.Debug("redirecting to authority", slog.String("host", u.Host), slog.String("prompt", prompt))
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// redirect receives the authority's response and redeems the code.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if code := q.Get("error"); code != "" {
		desc := q.Get("error_description")
		s.log.Warn("authority returned an error", slog.String("error", code), slog.String("description", desc))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = failPage.Execute(w, struct{ Code, Description string }{code, desc})
		return
	}

	respState := q.Get("state")
	var reqState string
	if c, err := r.Cookie(StateCookie); err == nil {
		reqState = c.Value
	}
	switch {
	case respState == "":
		s.error(w, http.StatusInternalServerError, "server didn't send OAuth state")
		return
	case respState != reqState:
		s.error(w, http.StatusInternalServerError, "mismatched OAuth state, req(%s), resp(%s)", reqState, respState)
		return
	}

	code := q.Get("code")
	if code == "" {
		s.error(w, http.StatusInternalServerError, "authorization code missing in query string")
		return
	}

	result, err := s.client.AcquireTokenByAuthCode(r.Context(), code, s.opts.RedirectURI, s.opts.Scopes)
	if err != nil {
		s.error(w, http.StatusInternalServerError, "could not redeem authorization code: %s", err)
		return
	}
	s.log.Info("signed in", slog.String("username", result.Account.PreferredUsername))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = okPage.Execute(w, struct{ Username string }{result.Account.PreferredUsername})
}

func (s *Server) error(w http.ResponseWriter, code int, str string, i ...any) {
	err := fmt.Errorf(str, i...)
	s.log.Error("sign in failed", slog.Any("error", err))
	http.Error(w, err.Error(), code)
}
