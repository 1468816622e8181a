package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// slugRegex matches post slugs served by the live server.
var slugRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateSlug validates a post slug taken from a request path.
//
// Slugs map to files under the server's document directory, so anything
// that could escape that directory is rejected:
//   - No empty slugs
//   - Maximum length of 200 characters
//   - Only letters, digits, dot, underscore and dash
//   - No ".." sequences
func ValidateSlug(slug string) error {
	if slug == "" {
		return New(ErrCodeInvalidInput, "slug cannot be empty")
	}
	if len(slug) > 200 {
		return New(ErrCodeInvalidInput, "slug too long (max 200 characters)")
	}
	if strings.Contains(slug, "..") {
		return New(ErrCodeInvalidPath, "slug cannot contain path traversal sequences (..)")
	}
	if !slugRegex.MatchString(slug) {
		return New(ErrCodeInvalidInput, "invalid slug: %q", slug)
	}
	return nil
}

// ValidatePath validates a relative file path (e.g. an image src) for safety.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
