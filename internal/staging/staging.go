// Package staging checks and removes media files staged for a publish job.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

// Verify returns a domain.ErrIOFailure if any staged file is missing or is
// not a regular file.
func Verify(paths []string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrIOFailure, p, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %s is not a regular file", domain.ErrIOFailure, p)
		}
	}
	return nil
}

// Remove deletes every staged file. Files already gone are not an error; all
// other failures are collected and returned together.
func Remove(paths []string) (removed int, err error) {
	var errs []error
	for _, p := range paths {
		if rmErr := os.Remove(p); rmErr != nil {
			if errors.Is(rmErr, fs.ErrNotExist) {
				continue
			}
			errs = append(errs, rmErr)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
