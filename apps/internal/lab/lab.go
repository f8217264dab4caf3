// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package lab fetches test users and their passwords from the identity lab.
// Users come from the lab REST API and passwords from the lab Key Vault, both authenticated
// with a certificate based confidential client.
package lab

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/confidential"
	"golang.org/x/crypto/pkcs12"

	"github.com/AzureAD/msal-go-e2e/apps/internal/config"
)

// Values accepted by the lab user API.
const (
	AzureEnvironmentCloud = "azurecloud"

	AppTypeCloud = "cloud"

	FederationProviderADFS2019 = "adfsv2019"
	FederationProviderADFSv4   = "adfsv4"
	FederationProviderNone     = "none"

	UserTypeCloud     = "cloud"
	UserTypeFederated = "federated"
)

// ErrNoUser is returned when the lab has no user matching a Query.
var ErrNoUser = errors.New("no lab user matches the query")

// Query selects a lab user. Empty fields are not sent.
type Query struct {
	AzureEnvironment   string
	AppType            string
	FederationProvider string
	UserType           string
}

// QueryFromConfig builds a Query from the lab section of the configuration.
func QueryFromConfig(c config.Lab) Query {
	return Query{
		AzureEnvironment:   c.AzureEnvironment,
		AppType:            c.AppType,
		FederationProvider: c.FederationProvider,
		UserType:           c.UserType,
	}
}

// Values encodes q as lab API query parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	add := func(k, val string) {
		if val != "" {
			v.Set(k, strings.ToLower(val))
		}
	}
	add("azureenvironment", q.AzureEnvironment)
	add("apptype", q.AppType)
	add("federationprovider", q.FederationProvider)
	add("usertype", q.UserType)
	return v
}

// User is a lab test account. The password is not part of the record; see Client.Secret.
type User struct {
	AppID              string `json:"appId"`
	ObjectID           string `json:"objectId"`
	UserType           string `json:"userType"`
	DisplayName        string `json:"displayName"`
	Licenses           string `json:"licenses"`
	Upn                string `json:"upn"`
	MFA                string `json:"mfa"`
	ProtectionPolicy   string `json:"protectionPolicy"`
	HomeDomain         string `json:"homeDomain"`
	HomeUPN            string `json:"homeUPN"`
	B2CProvider        string `json:"b2cProvider"`
	LabName            string `json:"labName"`
	LastUpdatedBy      string `json:"lastUpdatedBy"`
	LastUpdatedDate    string `json:"lastUpdatedDate"`
	TenantID           string `json:"tenantId"`
	FederationProvider string `json:"federationProvider"`
}

// tokenProvider is the part of confidential.Client the lab client needs.
type tokenProvider interface {
	AcquireTokenSilent(ctx context.Context, scopes []string, opts ...confidential.AcquireSilentOption) (confidential.AuthResult, error)
	AcquireTokenByCredential(ctx context.Context, scopes []string, opts ...confidential.AcquireByCredentialOption) (confidential.AuthResult, error)
}

// secretGetter is implemented by *azsecrets.Client.
type secretGetter interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// Client talks to the lab API and the lab Key Vault.
type Client struct {
	app     tokenProvider
	secrets secretGetter
	apiURL  string
	scope   string
	http    *http.Client
	log     *slog.Logger
}

// New creates a Client from the lab configuration. The certificate at c.CertPath may be PEM
// or PKCS#12 (.pfx, .p12).
func New(c config.Lab, log *slog.Logger) (*Client, error) {
	certs, key, err := loadCert(c.CertPath, c.CertPassword)
	if err != nil {
		return nil, err
	}
	cred, err := confidential.NewCredFromCert(certs, key)
	if err != nil {
		return nil, fmt.Errorf("could not create a cred from the cert: %w", err)
	}
	app, err := confidential.New(c.Authority, c.ClientID, cred, confidential.WithX5C())
	if err != nil {
		return nil, err
	}
	secrets, err := azsecrets.NewClient(c.VaultURL, newCredential(app), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create Key Vault client for %s: %w", c.VaultURL, err)
	}
	return newClient(app, secrets, c.APIURL, log)
}

func newClient(app tokenProvider, secrets secretGetter, apiURL string, log *slog.Logger) (*Client, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("lab API URL %q is invalid: %w", apiURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("lab API URL %q must be absolute", apiURL)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		app:     app,
		secrets: secrets,
		apiURL:  strings.TrimSuffix(apiURL, "/"),
		scope:   u.Scheme + "://" + u.Host + "/.default",
		http:    &http.Client{},
		log:     log,
	}, nil
}

// accessToken gets a lab API token, from the client's cache when possible.
func (c *Client) accessToken(ctx context.Context, scopes []string) (confidential.AuthResult, error) {
	result, err := c.app.AcquireTokenSilent(ctx, scopes)
	if err != nil {
		result, err = c.app.AcquireTokenByCredential(ctx, scopes)
		if err != nil {
			return confidential.AuthResult{}, fmt.Errorf("AcquireTokenByCredential() error: %w", err)
		}
	}
	return result, nil
}

// Users returns the lab users matching q.
func (c *Client) Users(ctx context.Context, q Query) ([]User, error) {
	result, err := c.accessToken(ctx, []string{c.scope})
	if err != nil {
		return nil, fmt.Errorf("problem getting lab access token: %w", err)
	}
	body, err := c.get(ctx, c.apiURL+"/user", q.Values(), result.AccessToken)
	if err != nil {
		return nil, err
	}
	var users []User
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("could not decode lab users: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoUser, q.Values().Encode())
	}
	return users, nil
}

// Secret returns the current value of the Key Vault secret name.
func (c *Client) Secret(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("secret name is empty")
	}
	resp, err := c.secrets.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secret %s has no value", name)
	}
	return *resp.Value, nil
}

// Credentials returns the username and password of the first lab user matching q.
func (c *Client) Credentials(ctx context.Context, q Query) (username, password string, err error) {
	users, err := c.Users(ctx, q)
	if err != nil {
		return "", "", err
	}
	u := users[0]
	if u.LabName == "" {
		return "", "", fmt.Errorf("user %s has no lab name for password lookup", u.Upn)
	}
	password, err = c.Secret(ctx, u.LabName)
	if err != nil {
		return "", "", fmt.Errorf("failed to get password for %s: %w", u.Upn, err)
	}
	c.log.Info("lab user selected", slog.String("upn", u.Upn), slog.String("federationProvider", u.FederationProvider))
	return u.Upn, password, nil
}

func (c *Client) get(ctx context.Context, u string, query url.Values, accessToken string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build new http request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.URL.RawQuery = query.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http.Get(%s) failed: %w", req.URL.String(), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http.Get(%s): could not read body: %w", req.URL.String(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http.Get(%s): lab returned status %d: %s", req.URL.String(), resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// loadCert reads a certificate chain and private key from a PEM or PKCS#12 file.
func loadCert(path, password string) ([]*x509.Certificate, crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading certificate file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pfx", ".p12":
		key, cert, err := pkcs12.Decode(data, password)
		if err != nil {
			return nil, nil, fmt.Errorf("error parsing PKCS#12 certificate: %w", err)
		}
		return []*x509.Certificate{cert}, key, nil
	}
	certs, key, err := confidential.CertFromPEM(data, password)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing certificate: %w", err)
	}
	return certs, key, nil
}
