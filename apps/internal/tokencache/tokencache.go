// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package tokencache reads, resets and persists the JSON token cache file that the sample apps
write through MSAL's cache.ExportReplace hook.

The end-to-end suites treat the file as the observable result of a sign-in: GetTokens flattens
it into per-type slices and Reset empties it between test cases.
*/
package tokencache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// emptyCache is what Reset writes. MSAL accepts it as an empty cache.
var emptyCache = Contract{
	AccessTokens:  map[string]AccessToken{},
	RefreshTokens: map[string]RefreshToken{},
	IDTokens:      map[string]IDToken{},
	Accounts:      map[string]Account{},
	AppMetadata:   map[string]AppMetadata{},
}

// Tokens are the credentials found in a cache file, each slice ordered by cache key.
type Tokens struct {
	AccessTokens  []AccessToken
	IDTokens      []IDToken
	RefreshTokens []RefreshToken
}

// Read parses the cache file at path. An empty file is an empty cache. A missing file returns
// an error wrapping fs.ErrNotExist.
func Read(path string) (Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Contract{}, fmt.Errorf("could not read token cache: %w", err)
	}
	var c Contract
	if len(bytes.TrimSpace(data)) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Contract{}, fmt.Errorf("token cache %s is not valid JSON: %w", path, err)
	}
	return c, nil
}

// GetTokens returns the access, ID and refresh tokens stored in the cache file at path.
func GetTokens(path string) (Tokens, error) {
	c, err := Read(path)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{
		AccessTokens:  sortedValues(c.AccessTokens),
		IDTokens:      sortedValues(c.IDTokens),
		RefreshTokens: sortedValues(c.RefreshTokens),
	}, nil
}

// Reset replaces the cache file at path with an empty cache, creating its directory if needed.
func Reset(path string) error {
	data, err := json.Marshal(emptyCache)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// writeFile writes through a temporary file in the same directory so readers never see a
// partially written cache.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("could not create token cache directory: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create token cache: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("could not write token cache: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not write token cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not replace token cache: %w", err)
	}
	return nil
}

func sortedValues[T any](m map[string]T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
