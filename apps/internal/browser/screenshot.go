// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package browser

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/playwright-community/playwright-go"
)

// CreateFolder creates path and any missing parents.
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("could not create folder %s: %w", path, err)
	}
	return nil
}

// Screenshot saves full page screenshots into one folder, one file per step name.
type Screenshot struct {
	dir string
}

// NewScreenshot returns a Screenshot writing into dir. The folder is created on first use.
func NewScreenshot(dir string) *Screenshot {
	return &Screenshot{dir: dir}
}

// Dir is the folder screenshots are written to.
func (s *Screenshot) Dir() string {
	return s.dir
}

// Path is the file a screenshot called name is written to.
func (s *Screenshot) Path(name string) string {
	return filepath.Join(s.dir, name+".png")
}

// Take captures page as name.png.
func (s *Screenshot) Take(page playwright.Page, name string) error {
	if err := CreateFolder(s.dir); err != nil {
		return err
	}
	_, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(s.Path(name)),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("could not capture screenshot %s: %w", name, err)
	}
	return nil
}
