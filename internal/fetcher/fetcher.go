// Package fetcher downloads source feeds over HTTP(S) or FTP and decodes them
// into documents ready for scoring.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options configures a FeedFetcher.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	MaxDocuments int
}

// FeedFetcher downloads a source's feed with the transport matching its URL
// scheme and decodes it according to the source format.
type FeedFetcher struct {
	http         Fetcher
	ftp          Fetcher
	maxDocuments int
}

// New creates a FeedFetcher with the default HTTP and FTP transports.
func New(opts Options) *FeedFetcher {
	return NewFeedFetcher(
		NewHTTPFetcher(HTTPOptions{
			UserAgent:  opts.UserAgent,
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
		}),
		NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}),
		opts.MaxDocuments,
	)
}

// NewFeedFetcher creates a FeedFetcher over explicit transports. A
// maxDocuments of zero means no cap.
func NewFeedFetcher(httpFetcher, ftpFetcher Fetcher, maxDocuments int) *FeedFetcher {
	return &FeedFetcher{http: httpFetcher, ftp: ftpFetcher, maxDocuments: maxDocuments}
}

// Fetch downloads and decodes the feed of src.
func (f *FeedFetcher) Fetch(ctx context.Context, src *model.Source) ([]model.Document, error) {
	transport, err := f.transportFor(src.URL)
	if err != nil {
		return nil, err
	}

	body, err := transport.Download(ctx, src.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: download source %s", src.Name)
	}
	defer body.Close() //nolint:errcheck

	docs, err := Decode(ctx, src.Format, body)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: decode source %s", src.Name)
	}

	if f.maxDocuments > 0 && len(docs) > f.maxDocuments {
		zap.L().Info("fetcher: truncating feed",
			zap.String("source", src.Name),
			zap.Int("documents", len(docs)),
			zap.Int("max_documents", f.maxDocuments),
		)
		docs = docs[:f.maxDocuments]
	}
	return docs, nil
}

func (f *FeedFetcher) transportFor(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse source url")
	}
	switch u.Scheme {
	case "http", "https":
		return f.http, nil
	case "ftp":
		return f.ftp, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}
