package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/marginalia/pkg/errors"
	"github.com/matzehuels/marginalia/pkg/httputil"
)

// Load returns the raw document for opts and the directory relative image
// paths resolve against.
func Load(ctx context.Context, client *httputil.Client, opts Options) ([]byte, string, error) {
	if opts.Document != nil {
		return opts.Document, opts.BaseDir, nil
	}
	if isURL(opts.Source) {
		if err := errors.ValidateURL(opts.Source); err != nil {
			return nil, "", err
		}
		if client == nil {
			client = httputil.NewClient()
		}
		data, err := client.Fetch(ctx, opts.Source)
		if err != nil {
			return nil, "", err
		}
		return data, opts.BaseDir, nil
	}

	if opts.Source == "" {
		return nil, "", errors.New(errors.ErrCodeInvalidInput, "no document source")
	}
	data, err := os.ReadFile(opts.Source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", errors.Wrap(errors.ErrCodeNotFound, err, "document %s", opts.Source)
		}
		return nil, "", errors.Wrap(errors.ErrCodeInvalidPath, err, "read %s", opts.Source)
	}
	base := opts.BaseDir
	if base == "" {
		base = filepath.Dir(opts.Source)
	}
	return data, base, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
