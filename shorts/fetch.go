package shorts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Feed file names, as published by the collector.
const (
	CurrentFile    = "short_positions_current.json"
	HistoricalFile = "short_positions_historical.json"
	MetaFile       = "short_positions_meta.json"
)

var feedFiles = []string{CurrentFile, HistoricalFile, MetaFile}

// ErrNoFeed is returned when the feed cannot be fetched and nothing is cached.
var ErrNoFeed = errors.New("no short-selling feed available")

// Feed is the content of the published files.
type Feed struct {
	Positions    []Position
	LastUpdated  string
	UpdateSource string
	Meta         Meta
	Historical   map[string]CompanyHistory
}

// Meta describes the last collector run.
type Meta struct {
	LastUpdate string `json:"last_update"`
	Positions  int    `json:"total_positions,omitempty"`
	Source     string `json:"source,omitempty"`
}

// CompanyHistory is the daily short percentage of a company.
type CompanyHistory struct {
	Ticker  string                 `json:"ticker"`
	History map[string]DailyShares `json:"history"`
}

// DailyShares is the short position of a day.
type DailyShares struct {
	Percentage float64 `json:"percentage"`
}

type currentFile struct {
	Positions    []Position `json:"positions"`
	LastUpdated  string     `json:"last_updated"`
	UpdateSource string     `json:"update_source"`
}

// objectGetter is the part of the S3 client used to download feed files.
type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Remote reads the feed from a directory, an http(s) URL or an s3://bucket/prefix URL and
// caches it in a local directory.
type Remote struct {
	location string
	cacheDir string
	ttl      time.Duration
	http     *http.Client
	s3       objectGetter
	now      func() time.Time
	log      zerolog.Logger
}

// NewRemote returns a Remote. The S3 client is created on first use from the default AWS
// configuration chain.
func NewRemote(location, cacheDir string, ttl time.Duration, log zerolog.Logger) *Remote {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Remote{
		location: location,
		cacheDir: cacheDir,
		ttl:      ttl,
		http:     &http.Client{Timeout: 30 * time.Second},
		now:      time.Now,
		log:      log,
	}
}

// Protocol returns file, http or s3.
func (r *Remote) Protocol() string {
	switch {
	case strings.HasPrefix(r.location, "s3://"):
		return "s3"
	case strings.HasPrefix(r.location, "http://"), strings.HasPrefix(r.location, "https://"):
		return "http"
	}
	return "file"
}

// Location returns the configured feed location.
func (r *Remote) Location() string { return r.location }

// Age returns the age of the cached feed from its metadata.
func (r *Remote) Age() (time.Duration, bool) {
	var meta Meta
	if err := readJSON(filepath.Join(r.cacheDir, MetaFile), &meta); err != nil {
		return 0, false
	}
	t, err := parseTimestamp(meta.LastUpdate)
	if err != nil {
		return 0, false
	}
	return r.now().Sub(t), true
}

// CacheValid reports whether the cached feed is younger than the TTL.
func (r *Remote) CacheValid() bool {
	age, ok := r.Age()
	return ok && age < r.ttl
}

// Fetch returns the feed. A valid cache is used unless force is set. When the download
// fails the cache is used whatever its age.
func (r *Remote) Fetch(ctx context.Context, force bool) (*Feed, error) {
	if !force && r.CacheValid() {
		r.log.Debug().Msg("using cached short-selling feed")
		return r.loadCache()
	}
	r.log.Info().Str("protocol", r.Protocol()).Str("location", r.location).Msg("fetching short-selling feed")
	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return nil, err
	}
	err := r.download(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("cannot fetch short-selling feed, using cache")
	}
	feed, cerr := r.loadCache()
	if cerr != nil {
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoFeed, err)
		}
		return nil, cerr
	}
	return feed, nil
}

func (r *Remote) download(ctx context.Context) error {
	switch r.Protocol() {
	case "s3":
		return r.fromS3(ctx)
	case "http":
		return r.fromHTTP(ctx)
	default:
		return r.fromDir()
	}
}

func (r *Remote) fromDir() error {
	if _, err := os.Stat(r.location); err != nil {
		return fmt.Errorf("feed directory: %w", err)
	}
	for _, name := range feedFiles {
		data, err := os.ReadFile(filepath.Join(r.location, name))
		if errors.Is(err, os.ErrNotExist) {
			r.log.Warn().Str("file", name).Msg("feed file not found")
			continue
		}
		if err != nil {
			return err
		}
		if err := r.store(name, data); err != nil {
			return err
		}
	}
	return nil
}

func (r *Remote) fromHTTP(ctx context.Context) error {
	base := strings.TrimRight(r.location, "/")
	for _, name := range feedFiles {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+name, nil)
		if err != nil {
			return err
		}
		resp, err := r.http.Do(req)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}
		switch resp.StatusCode {
		case http.StatusOK:
			if err := r.store(name, data); err != nil {
				return err
			}
		case http.StatusNotFound:
			r.log.Warn().Str("file", name).Msg("feed file not found")
		default:
			return fmt.Errorf("GET %s: %s", req.URL, resp.Status)
		}
	}
	return nil
}

func (r *Remote) fromS3(ctx context.Context) error {
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(r.location, "s3://"), "/")
	if bucket == "" {
		return fmt.Errorf("invalid s3 location %q", r.location)
	}
	if r.s3 == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		r.s3 = s3.NewFromConfig(cfg)
	}
	for _, name := range feedFiles {
		key := path.Join(prefix, name)
		out, err := r.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("cannot download feed file")
			continue
		}
		data, err := io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			return err
		}
		if err := r.store(name, data); err != nil {
			return err
		}
	}
	return nil
}

func (r *Remote) store(name string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("%s is not valid JSON", name)
	}
	return writeFile(filepath.Join(r.cacheDir, name), data)
}

func (r *Remote) loadCache() (*Feed, error) {
	var cur currentFile
	if err := readJSON(filepath.Join(r.cacheDir, CurrentFile), &cur); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoFeed, err)
	}
	feed := &Feed{
		Positions:    cur.Positions,
		LastUpdated:  cur.LastUpdated,
		UpdateSource: cur.UpdateSource,
		Historical:   map[string]CompanyHistory{},
	}
	if feed.UpdateSource == "" {
		feed.UpdateSource = "remote"
	}
	_ = readJSON(filepath.Join(r.cacheDir, MetaFile), &feed.Meta)
	_ = readJSON(filepath.Join(r.cacheDir, HistoricalFile), &feed.Historical)
	return feed, nil
}

func readJSON(name string, v any) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeFile writes data through a temporary file in the same directory.
func writeFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}

// parseTimestamp accepts ISO timestamps with or without zone and fraction.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
