// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package tokencache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
)

var _ cache.ExportReplace = (*File)(nil)

// File persists an MSAL client's cache to a single JSON file. MSAL calls Replace before it
// reads the cache and Export after it writes, so changes made to the file by another process
// (such as Reset between test cases) are picked up on the next token operation.
type File struct {
	path string
	log  *slog.Logger

	mu sync.Mutex
}

// NewFile returns a File backed by path. If log is nil, slog.Default() is used.
func NewFile(path string, log *slog.Logger) *File {
	if log == nil {
		log = slog.Default()
	}
	return &File{path: path, log: log}
}

// Path is the file the cache is stored in.
func (f *File) Path() string {
	return f.path
}

// Replace implements cache.ExportReplace. A missing or empty file leaves the in-memory cache
// as an empty cache.
func (f *File) Replace(ctx context.Context, u cache.Unmarshaler, hints cache.ReplaceHints) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = nil
	case err != nil:
		return fmt.Errorf("could not read token cache: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	if err := u.Unmarshal(data); err != nil {
		return fmt.Errorf("could not load token cache %s: %w", f.path, err)
	}
	f.log.Debug("token cache loaded", slog.String("path", f.path), slog.Int("bytes", len(data)), slog.String("partition", hints.PartitionKey))
	return nil
}

// Export implements cache.ExportReplace.
func (f *File) Export(ctx context.Context, m cache.Marshaler, hints cache.ExportHints) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("could not serialize token cache: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := writeFile(f.path, data); err != nil {
		return err
	}
	f.log.Debug("token cache exported", slog.String("path", f.path), slog.Int("bytes", len(data)), slog.String("partition", hints.PartitionKey))
	return nil
}
