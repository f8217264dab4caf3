// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// authcodeapp is the sample web app the ADFS end-to-end suite signs in to. It serves the
// authorization code flow on localhost and writes the resulting tokens to a cache file.
//
// The suite reads that file from its own package directory. Give both processes the same
// absolute path, for example with MSAL_E2E_CACHE_LOCATION or --cache, or start authcodeapp
// from apps/tests/e2e/authcodeadfs so the default data/testCache.json resolves the same way.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/confidential"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/AzureAD/msal-go-e2e/apps/internal/config"
	"github.com/AzureAD/msal-go-e2e/apps/internal/sampleapp"
	"github.com/AzureAD/msal-go-e2e/apps/internal/tokencache"
)

var (
	cfgFile string
	debug   bool
	open    bool

	rootCmd = &cobra.Command{
		Use:   "authcodeapp",
		Short: "Serve the auth code sample app",
		Long: `authcodeapp serves GET / which redirects to the identity provider's authorize
endpoint, and the redirect URI which redeems the authorization code and persists
the tokens to the cache file.`,
		SilenceUsage: true,
		RunE:         run,
	}

	// flag name -> config key
	bindings = map[string]string{
		"port":          config.KeyAppPort,
		"client-id":     config.KeyAppClientID,
		"client-secret": config.KeyAppClientSecret,
		"cert-path":     config.KeyAppCertPath,
		"authority":     config.KeyAppAuthority,
		"redirect-uri":  config.KeyAppRedirectURI,
		"scopes":        config.KeyAppScopes,
		"cache":         config.KeyCacheLocation,
		"home-route":    config.KeyHomeRoute,
	}
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file")
	flags.BoolVarP(&debug, "debug", "d", false, "enable debug logs")
	flags.BoolVar(&open, "open", false, "open the home route in the system browser once serving")

	flags.Int("port", 0, "port to listen on")
	flags.String("client-id", "", "application (client) ID")
	flags.String("client-secret", "", "client secret; takes precedence over --cert-path")
	flags.String("cert-path", "", "PEM file holding the client certificate and its private key")
	flags.String("authority", "", "authority URL")
	flags.String("redirect-uri", "", "redirect URI registered for the app")
	flags.StringSlice("scopes", nil, "scopes to request")
	flags.String("cache", "", "token cache file")
	flags.String("home-route", "", "URL opened by --open")
}

// bindFlags binds the flags in bindings to their config keys. A flag wins only when set.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("could not bind --%s: %w", name, err)
		}
	}
	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func credential(app config.App) (confidential.Credential, error) {
	if app.ClientSecret != "" {
		return confidential.NewCredFromSecret(app.ClientSecret)
	}
	if app.CertPath == "" {
		return confidential.Credential{}, errors.New("either a client secret or a certificate is required")
	}
	b, err := os.ReadFile(app.CertPath)
	if err != nil {
		return confidential.Credential{}, fmt.Errorf("could not read certificate: %w", err)
	}
	certs, key, err := confidential.CertFromPEM(b, "")
	if err != nil {
		return confidential.Credential{}, fmt.Errorf("could not parse certificate: %w", err)
	}
	return confidential.NewCredFromCert(certs, key)
}

func run(cmd *cobra.Command, _ []string) error {
	log := newLogger()
	slog.SetDefault(log)

	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if cfg.App.ClientID == "" {
		return fmt.Errorf("%s must be set", config.KeyAppClientID)
	}

	cred, err := credential(cfg.App)
	if err != nil {
		return err
	}
	client, err := confidential.New(cfg.App.Authority, cfg.App.ClientID, cred,
		confidential.WithCache(tokencache.NewFile(cfg.CacheLocation, log)),
	)
	if err != nil {
		return fmt.Errorf("could not create confidential client: %w", err)
	}

	srv, err := sampleapp.New(&client, sampleapp.Options{
		ClientID:    cfg.App.ClientID,
		RedirectURI: cfg.App.RedirectURI,
		Scopes:      cfg.App.Scopes,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if open {
		go func() {
			if err := browser.OpenURL(cfg.HomeRoute); err != nil {
				log.Warn("could not open browser", slog.Any("error", err))
			}
		}()
	}
	addr := fmt.Sprintf("localhost:%d", cfg.App.Port)
	log.Info("serving", slog.String("addr", addr), slog.String("cache", cfg.CacheLocation))
	return srv.ListenAndServe(ctx, addr)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
