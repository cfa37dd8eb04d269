package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Format is the tabular encoding of a catalog source.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// Kind is where a catalog source lives.
type Kind string

const (
	KindFile Kind = "file"
	KindHTTP Kind = "http"
	KindS3   Kind = "s3"
)

// Source describes a catalog location: a local path, an http(s) URL or an
// s3://bucket/key URL.
type Source struct {
	Location string
	Kind     Kind
	Format   Format
	Bucket   string // s3 only
	Key      string // s3 only
}

// ParseSource classifies loc. The format is taken from the file extension;
// anything other than .parquet is read as CSV.
func ParseSource(loc string) (Source, error) {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return Source{}, fmt.Errorf("empty catalog source")
	}

	src := Source{Location: loc, Kind: KindFile}
	p := loc

	if u, err := url.Parse(loc); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			src.Kind = KindHTTP
			p = u.Path
		case "s3":
			if u.Host == "" || strings.Trim(u.Path, "/") == "" {
				return Source{}, fmt.Errorf("s3 source %q must be s3://bucket/key", loc)
			}
			src.Kind = KindS3
			src.Bucket = u.Host
			src.Key = strings.TrimPrefix(u.Path, "/")
			p = u.Path
		}
	}

	src.Format = FormatCSV
	if strings.EqualFold(path.Ext(p), ".parquet") {
		src.Format = FormatParquet
	}
	return src, nil
}

// Remote reports whether the source must be downloaded before parsing.
func (s Source) Remote() bool {
	return s.Kind != KindFile
}

// Fetcher retrieves the raw bytes of a remote catalog source.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// DefaultMaxBytes caps a downloaded catalog payload when no limit is set.
const DefaultMaxBytes int64 = 64 << 20

// sizeError reports a payload larger than the configured cap. The loader
// never retries it.
type sizeError struct {
	limit int64
}

func (e *sizeError) Error() string {
	return fmt.Sprintf("catalog payload exceeds %d bytes", e.limit)
}

// readCapped reads r fully, failing once more than limit bytes arrive.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, &sizeError{limit: limit}
	}
	return body, nil
}

// HTTPFetcher downloads a catalog over HTTP(S).
type HTTPFetcher struct {
	url        string
	maxBytes   int64
	httpClient *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher for rawURL that rejects bodies over
// maxBytes (DefaultMaxBytes when <= 0).
func NewHTTPFetcher(rawURL string, maxBytes int64) *HTTPFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{
		url:      rawURL,
		maxBytes: maxBytes,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Fetch performs an HTTP GET and returns the response body.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, url: f.url}
	}

	if resp.ContentLength > f.maxBytes {
		return nil, &sizeError{limit: f.maxBytes}
	}
	body, err := readCapped(resp.Body, f.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.code, e.url)
}

// retryable reports whether the status may succeed on a later attempt.
func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// S3Config holds credentials and region for s3:// sources. Empty keys fall
// back to the default AWS credential chain.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// S3Fetcher downloads a catalog object from S3.
type S3Fetcher struct {
	client   *s3.Client
	bucket   string
	key      string
	maxBytes int64
}

// NewS3Fetcher builds an S3 client from cfg for the bucket and key in src.
func NewS3Fetcher(ctx context.Context, src Source, cfg S3Config, maxBytes int64) (*S3Fetcher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Fetcher{client: client, bucket: src.Bucket, key: src.Key, maxBytes: maxBytes}, nil
}

// Fetch downloads the object body.
func (f *S3Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", f.bucket, f.key, err)
	}
	defer out.Body.Close()

	body, err := readCapped(out.Body, f.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("reading s3 object body: %w", err)
	}
	return body, nil
}
