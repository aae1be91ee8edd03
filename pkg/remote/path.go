package remote

import (
	"fmt"
	"path"
	"strings"
)

// ValidatePath checks that p is a well-formed container-relative path.
//
// Rules: non-empty, relative (no leading "/"), and confined to the container
// root after cleaning (no ".." escapes). Trailing slashes are rejected;
// directories are addressed by their bare path.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path: %w", ErrInvalidPath)
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("path %q is absolute: %w", p, ErrInvalidPath)
	}
	if strings.HasSuffix(p, "/") {
		return fmt.Errorf("path %q has trailing slash: %w", p, ErrInvalidPath)
	}

	clean := path.Clean(p)
	if clean != p || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path %q escapes container root: %w", p, ErrInvalidPath)
	}

	return nil
}
