// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package tokencache

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Contract is the JSON layout MSAL libraries share when serializing a token cache.
type Contract struct {
	AccessTokens  map[string]AccessToken  `json:"AccessToken"`
	RefreshTokens map[string]RefreshToken `json:"RefreshToken"`
	IDTokens      map[string]IDToken      `json:"IdToken"`
	Accounts      map[string]Account      `json:"Account"`
	AppMetadata   map[string]AppMetadata  `json:"AppMetadata"`
}

// AccessToken is a cached access token.
type AccessToken struct {
	HomeAccountID     string `json:"home_account_id,omitempty"`
	Environment       string `json:"environment,omitempty"`
	Realm             string `json:"realm,omitempty"`
	CredentialType    string `json:"credential_type,omitempty"`
	ClientID          string `json:"client_id,omitempty"`
	Secret            string `json:"secret,omitempty"`
	Scopes            string `json:"target,omitempty"`
	ExpiresOn         Unix   `json:"expires_on,omitempty"`
	ExtendedExpiresOn Unix   `json:"extended_expires_on,omitempty"`
	CachedAt          Unix   `json:"cached_at,omitempty"`
}

// IDToken is a cached ID token. Secret holds the raw JWT.
type IDToken struct {
	HomeAccountID  string `json:"home_account_id,omitempty"`
	Environment    string `json:"environment,omitempty"`
	Realm          string `json:"realm,omitempty"`
	CredentialType string `json:"credential_type,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	Secret         string `json:"secret,omitempty"`
}

// RefreshToken is a cached refresh token.
type RefreshToken struct {
	HomeAccountID  string `json:"home_account_id,omitempty"`
	Environment    string `json:"environment,omitempty"`
	CredentialType string `json:"credential_type,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	FamilyID       string `json:"family_id,omitempty"`
	Secret         string `json:"secret,omitempty"`
	Realm          string `json:"realm,omitempty"`
}

// Account is a cached account record.
type Account struct {
	HomeAccountID     string `json:"home_account_id,omitempty"`
	Environment       string `json:"environment,omitempty"`
	Realm             string `json:"realm,omitempty"`
	LocalAccountID    string `json:"local_account_id,omitempty"`
	AuthorityType     string `json:"authority_type,omitempty"`
	PreferredUsername string `json:"username,omitempty"`
}

// AppMetadata is cached per-client metadata.
type AppMetadata struct {
	FamilyID    string `json:"family_id,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// usernameClaims are checked in order. ADFS issues upn and unique_name, AAD preferred_username.
var usernameClaims = []string{"preferred_username", "upn", "unique_name", "email"}

// Claims decodes the ID token payload without verifying its signature.
func (i IDToken) Claims() (jwt.MapClaims, error) {
	if i.Secret == "" {
		return nil, fmt.Errorf("id token has no secret")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(i.Secret, claims); err != nil {
		return nil, fmt.Errorf("could not decode id token: %w", err)
	}
	return claims, nil
}

// Username returns the first username style claim present in the ID token.
func (i IDToken) Username() (string, error) {
	claims, err := i.Claims()
	if err != nil {
		return "", err
	}
	for _, name := range usernameClaims {
		if s, ok := claims[name].(string); ok && s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("id token has none of the claims %v", usernameClaims)
}

// Unix is a time serialized as a string holding seconds since the epoch.
type Unix struct {
	T time.Time
}

// MarshalJSON implements encoding/json.Marshaler.
func (u Unix) MarshalJSON() ([]byte, error) {
	if u.T.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(strconv.Quote(strconv.FormatInt(u.T.Unix(), 10))), nil
}

// UnmarshalJSON implements encoding/json.Unmarshaler.
func (u *Unix) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		u.T = time.Time{}
		return nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("unix time(%s) could not be converted from string to int: %w", s, err)
	}
	u.T = time.Unix(i, 0)
	return nil
}
