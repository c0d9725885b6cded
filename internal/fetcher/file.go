package fetcher

import (
	"context"
	"fmt"
	"os"

	scrapeerrors "github.com/okarpenko/autoria-scraper/internal/errors"
	"github.com/okarpenko/autoria-scraper/internal/types"
)

// File serves local HTML files in place of the live site: every index fetch
// reads the listing file, every detail fetch reads the detail file. Used for
// test mode and mock ingestion; everything downstream of the fetch is
// identical to a live run.
type File struct {
	listingPath string
	detailPath  string
}

// NewFile creates a file-backed fetcher.
func NewFile(listingPath, detailPath string) *File {
	return &File{listingPath: listingPath, detailPath: detailPath}
}

func (f *File) Fetch(ctx context.Context, url string, kind types.PageKind) (string, error) {
	if ctx.Err() != nil {
		return "", scrapeerrors.NewFetch(url, "context canceled before fetch", ctx.Err())
	}

	path := f.listingPath
	if kind == types.PageDetail {
		path = f.detailPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", scrapeerrors.NewFetch(url, fmt.Sprintf("failed to read mock file %s", path), err)
	}
	return string(data), nil
}
