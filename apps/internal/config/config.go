// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package config holds the settings shared by the end-to-end suites and the sample apps they drive.

Values come from, in order of precedence: flags bound by the caller, environment variables
prefixed with MSAL_E2E_ (dots in key names become underscores, so lab.cert_path is read from
MSAL_E2E_LAB_CERT_PATH), an optional config file, and the defaults below.
*/
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "MSAL_E2E"

// Keys understood by Load.
const (
	KeyHomeRoute     = "home_route"
	KeyCacheLocation = "cache_location"
	KeyScreenshotDir = "screenshot_dir"
	KeyHeadless      = "headless"
	KeyTestTimeout   = "test_timeout"
	KeyRedirectWait  = "redirect_wait"

	KeyLabAzureEnvironment   = "lab.azure_environment"
	KeyLabAppType            = "lab.app_type"
	KeyLabFederationProvider = "lab.federation_provider"
	KeyLabUserType           = "lab.user_type"
	KeyLabAPIURL             = "lab.api_url"
	KeyLabVaultURL           = "lab.vault_url"
	KeyLabAuthority          = "lab.authority"
	KeyLabClientID           = "lab.client_id"
	KeyLabCertPath           = "lab.cert_path"
	KeyLabCertPassword       = "lab.cert_password"

	KeyAppPort         = "app.port"
	KeyAppClientID     = "app.client_id"
	KeyAppClientSecret = "app.client_secret"
	KeyAppCertPath     = "app.cert_path"
	KeyAppAuthority    = "app.authority"
	KeyAppRedirectURI  = "app.redirect_uri"
	KeyAppScopes       = "app.scopes"
)

var defaults = map[string]any{
	KeyHomeRoute:     "http://localhost:3000",
	KeyCacheLocation: "data/testCache.json",
	KeyScreenshotDir: "screenshots",
	KeyHeadless:      true,
	KeyTestTimeout:   60 * time.Second,
	KeyRedirectWait:  4 * time.Second,

	KeyLabAzureEnvironment:   "azurecloud",
	KeyLabAppType:            "cloud",
	KeyLabFederationProvider: "adfsv2019",
	KeyLabUserType:           "federated",
	KeyLabAPIURL:             "https://msidlab.com/api",
	KeyLabVaultURL:           "https://msidlabs.vault.azure.net",
	KeyLabAuthority:          "https://login.microsoftonline.com/microsoft.onmicrosoft.com",
	KeyLabClientID:           "f62c5ae3-bf3a-4af5-afa8-a68b800396e9",
	KeyLabCertPath:           "cert.pem",

	KeyAppPort:        3000,
	KeyAppAuthority:   "https://login.microsoftonline.com/organizations",
	KeyAppRedirectURI: "http://localhost:3000/redirect",
	KeyAppScopes:      []string{"user.read"},
}

// Lab describes how to reach the credential lab and which kind of user to ask it for.
type Lab struct {
	AzureEnvironment   string
	AppType            string
	FederationProvider string
	UserType           string

	APIURL       string
	VaultURL     string
	Authority    string
	ClientID     string
	CertPath     string
	CertPassword string
}

// App configures the sample auth code application.
type App struct {
	Port         int
	ClientID     string
	ClientSecret string
	CertPath     string
	Authority    string
	RedirectURI  string
	Scopes       []string
}

// Config is the resolved configuration.
type Config struct {
	// HomeRoute is the root URL of the sample app under test.
	HomeRoute string
	// CacheLocation is the token cache file written by the sample app and read by the suite,
	// made absolute against the working directory. The suite runs in its package directory and
	// the sample app wherever it was started, so both must be given the same absolute path
	// unless they share a working directory.
	CacheLocation string
	// ScreenshotDir is the base folder for diagnostic screenshots.
	ScreenshotDir string
	Headless      bool
	// TestTimeout bounds every test case.
	TestTimeout time.Duration
	// RedirectWait is how long a test sleeps after a navigation that completes through redirects.
	RedirectWait time.Duration

	Lab Lab
	App App
}

// New returns a viper instance with defaults and environment overrides installed. If file is
// not empty it is read as a config file.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config file %q: %w", file, err)
		}
	}
	return v, nil
}

// Load resolves a Config from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	c := Config{
		HomeRoute:     strings.TrimSuffix(v.GetString(KeyHomeRoute), "/"),
		CacheLocation: v.GetString(KeyCacheLocation),
		ScreenshotDir: v.GetString(KeyScreenshotDir),
		Headless:      v.GetBool(KeyHeadless),
		TestTimeout:   v.GetDuration(KeyTestTimeout),
		RedirectWait:  v.GetDuration(KeyRedirectWait),
		Lab: Lab{
			AzureEnvironment:   v.GetString(KeyLabAzureEnvironment),
			AppType:            v.GetString(KeyLabAppType),
			FederationProvider: v.GetString(KeyLabFederationProvider),
			UserType:           v.GetString(KeyLabUserType),
			APIURL:             strings.TrimSuffix(v.GetString(KeyLabAPIURL), "/"),
			VaultURL:           v.GetString(KeyLabVaultURL),
			Authority:          v.GetString(KeyLabAuthority),
			ClientID:           v.GetString(KeyLabClientID),
			CertPath:           v.GetString(KeyLabCertPath),
			CertPassword:       v.GetString(KeyLabCertPassword),
		},
		App: App{
			Port:         v.GetInt(KeyAppPort),
			ClientID:     v.GetString(KeyAppClientID),
			ClientSecret: v.GetString(KeyAppClientSecret),
			CertPath:     v.GetString(KeyAppCertPath),
			Authority:    v.GetString(KeyAppAuthority),
			RedirectURI:  v.GetString(KeyAppRedirectURI),
			Scopes:       scopes(v.GetStringSlice(KeyAppScopes)),
		},
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	abs, err := filepath.Abs(c.CacheLocation)
	if err != nil {
		return Config{}, fmt.Errorf("could not resolve %s %q: %w", KeyCacheLocation, c.CacheLocation, err)
	}
	c.CacheLocation = abs
	return c, nil
}

// scopes accepts both a list and a single space separated string, which is how
// an environment variable arrives.
func scopes(in []string) []string {
	var out []string
	for _, s := range in {
		out = append(out, strings.Fields(s)...)
	}
	return out
}

func (c Config) validate() error {
	var errs []error
	if err := absoluteURL(KeyHomeRoute, c.HomeRoute); err != nil {
		errs = append(errs, err)
	}
	if err := absoluteURL(KeyAppRedirectURI, c.App.RedirectURI); err != nil {
		errs = append(errs, err)
	}
	if c.CacheLocation == "" {
		errs = append(errs, fmt.Errorf("%s must be set", KeyCacheLocation))
	}
	if c.TestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", KeyTestTimeout, c.TestTimeout))
	}
	if c.RedirectWait < 0 {
		errs = append(errs, fmt.Errorf("%s can't be negative, got %s", KeyRedirectWait, c.RedirectWait))
	}
	if c.App.Port < 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s out of range: %d", KeyAppPort, c.App.Port))
	}
	return errors.Join(errs...)
}

func absoluteURL(key, s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, s)
	}
	return nil
}
