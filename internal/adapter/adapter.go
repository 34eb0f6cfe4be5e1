// Package adapter defines the contract every listing source implements.
// Each source lives in its own subpackage and flattens its wire format
// into domain.RawListing at the boundary.
package adapter

import (
	"context"

	"github.com/dachjobs/go-crawler/internal/domain"
)

// Source fetches raw listings for a search query from one job board.
type Source interface {
	// Name returns the source identifier stored on every listing.
	Name() string

	// Fetch retrieves up to pages result pages for query in the given
	// country (ISO code, e.g. "DE"). A partial result with a nil error
	// is normal: sources stop early on short pages, quota exhaustion
	// or upstream errors already logged.
	Fetch(ctx context.Context, query string, pages int, country string) ([]domain.RawListing, error)
}
