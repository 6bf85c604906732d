// Package storage exports finished WAV segments, either to a local output
// directory or to an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for names that are empty or contain a path.
var ErrInvalidName = errors.New("storage: invalid object name")

// Storage is the export port.
type Storage interface {
	// Save writes data under name and returns where it ended up: a file
	// path for local storage, a URL for S3.
	Save(ctx context.Context, name string, data io.Reader) (location string, err error)

	// Open reads back an object previously saved under name.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
