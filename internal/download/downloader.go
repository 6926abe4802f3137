// Package download implements the per-source configuration download pipeline.
//
// Candidate locations are tried one at a time. For the first location that works, every
// file of its directory is fetched (unless the local copy already matches the declared
// hash), verified and dispatched in memory. Only then is the batch committed to disk and
// the instance directory swept of files that are no longer listed.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/globalconf-client/internal/content"
	"github.com/stacklok/globalconf-client/internal/directory"
	"github.com/stacklok/globalconf-client/internal/globalconf"
	"github.com/stacklok/globalconf-client/internal/httpclient"
	"github.com/stacklok/globalconf-client/internal/location"
	"github.com/stacklok/globalconf-client/internal/otel"
	"github.com/stacklok/globalconf-client/internal/telemetry"
	"github.com/stacklok/globalconf-client/internal/verify"
	"github.com/stacklok/globalconf-client/internal/version"
)

//go:generate mockgen -destination=mocks/mock_downloader.go -package=mocks -source=downloader.go Downloader

var errNoLocations = errors.New("source has no usable download locations")

// Downloader downloads the configuration of a source
type Downloader interface {
	// Download fetches the configuration of src. When contentIDs is not empty only
	// those content identifiers are downloaded.
	Download(ctx context.Context, src globalconf.Source, contentIDs ...string) *Result
}

// ContentObserver is called with every file of a successfully downloaded configuration
type ContentObserver func(f globalconf.File)

// ConfigurationDownloader is the default Downloader
type ConfigurationDownloader struct {
	root  string
	table *location.LastSuccessTable

	client     httpclient.Client
	resolver   version.Resolver
	parser     *directory.Parser
	dispatcher *content.Dispatcher
	sink       PersistSink
	cleanup    CleanupPolicy
	observer   ContentObserver
	shuffle    location.Shuffler
	metrics    *telemetry.DownloadMetrics
	tracer     trace.Tracer
}

// Option configures a ConfigurationDownloader
type Option func(*ConfigurationDownloader)

// WithHTTPClient sets the client used for directories and content
func WithHTTPClient(client httpclient.Client) Option {
	return func(d *ConfigurationDownloader) {
		d.client = client
	}
}

// WithResolver sets the version resolver
func WithResolver(resolver version.Resolver) Option {
	return func(d *ConfigurationDownloader) {
		d.resolver = resolver
	}
}

// WithParser sets the directory parser
func WithParser(parser *directory.Parser) Option {
	return func(d *ConfigurationDownloader) {
		d.parser = parser
	}
}

// WithDispatcher sets the content dispatcher
func WithDispatcher(dispatcher *content.Dispatcher) Option {
	return func(d *ConfigurationDownloader) {
		d.dispatcher = dispatcher
	}
}

// WithPersistSink sets where verified batches are committed
func WithPersistSink(sink PersistSink) Option {
	return func(d *ConfigurationDownloader) {
		d.sink = sink
	}
}

// WithCleanupPolicy sets how stale files are removed
func WithCleanupPolicy(cleanup CleanupPolicy) Option {
	return func(d *ConfigurationDownloader) {
		d.cleanup = cleanup
	}
}

// WithContentObserver registers an observer for downloaded files
func WithContentObserver(observer ContentObserver) Option {
	return func(d *ConfigurationDownloader) {
		d.observer = observer
	}
}

// WithTracer records a span per location attempt
func WithTracer(tracer trace.Tracer) Option {
	return func(d *ConfigurationDownloader) {
		d.tracer = tracer
	}
}

// WithShuffler sets the shuffle used to order locations
func WithShuffler(shuffle location.Shuffler) Option {
	return func(d *ConfigurationDownloader) {
		d.shuffle = shuffle
	}
}

// WithMetrics sets the download metrics
func WithMetrics(metrics *telemetry.DownloadMetrics) Option {
	return func(d *ConfigurationDownloader) {
		d.metrics = metrics
	}
}

// New creates a downloader writing below root. table is shared by all downloads of the
// process and records the last location that worked for each source.
func New(root string, table *location.LastSuccessTable, opts ...Option) (*ConfigurationDownloader, error) {
	d := &ConfigurationDownloader{
		root:    root,
		table:   table,
		sink:    FileSink{},
		cleanup: SweepCleanup{},
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.client == nil {
		d.client = httpclient.NewDefaultClient(0)
	}
	if d.resolver == nil {
		d.resolver = version.Range{
			Min:    version.DefaultMinVersion,
			Max:    version.DefaultMaxVersion,
			Checker: d.client,
		}
	}
	if d.parser == nil {
		verifier, err := verify.NewSignatureVerifier(0)
		if err != nil {
			return nil, err
		}
		d.parser = directory.NewParser(verifier, nil)
	}
	if d.dispatcher == nil {
		d.dispatcher = content.NewDispatcher(nil)
	}
	return d, nil
}

// Download tries the candidate locations of src in order until one succeeds
func (d *ConfigurationDownloader) Download(ctx context.Context, src globalconf.Source, contentIDs ...string) *Result {
	result := &Result{Source: src}

	for _, loc := range location.Order(src, d.table, d.shuffle) {
		if err := ctx.Err(); err != nil {
			result.fatal = fmt.Errorf("download of %s interrupted: %w", src.InstanceIdentifier, err)
			return result
		}

		attemptCtx, span := otel.StartSpan(ctx, d.tracer, "download location",
			trace.WithAttributes(
				otel.AttrInstance.String(src.InstanceIdentifier),
				otel.AttrLocation.String(loc.DownloadURL),
			))
		conf, err := d.attempt(attemptCtx, src, loc, contentIDs)
		otel.RecordError(span, err)
		if conf != nil {
			span.SetAttributes(otel.AttrFiles.Int(len(conf.Files)))
		}
		span.End()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.fatal = fmt.Errorf("download of %s interrupted: %w", src.InstanceIdentifier, ctxErr)
				return result
			}
			slog.Warn("Unable to download configuration",
				"instance", src.InstanceIdentifier,
				"location", loc.DownloadURL,
				"error", err)
			d.metrics.RecordLocationFailure(ctx, src.InstanceIdentifier, loc.DownloadURL)
			d.table.Forget(src, loc)
			result.addFailure(loc, err)
			continue
		}

		d.table.Put(src, loc)
		result.Configuration = conf
		return result
	}

	if len(result.Attempts) > 0 {
		slog.Error("Failed to download configuration from any location",
			"instance", src.InstanceIdentifier,
			"attempts", len(result.Attempts),
			"error", result.LastErr())
	}
	return result
}

func (d *ConfigurationDownloader) attempt(
	ctx context.Context, src globalconf.Source, loc globalconf.Location, contentIDs []string,
) (*globalconf.Configuration, error) {
	loc = d.supplementVerificationCerts(src, loc)

	dirURL, err := d.resolver.Resolve(ctx, loc.DownloadURL)
	if err != nil {
		return nil, err
	}

	slog.Info("Downloading configuration", "instance", src.InstanceIdentifier, "location", dirURL)
	data, err := d.client.Get(ctx, dirURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download configuration directory: %w", err)
	}

	conf, err := d.parser.Parse(loc.WithURL(dirURL), data, contentIDs...)
	if err != nil {
		return nil, err
	}

	batch, err := d.stage(ctx, src, dirURL, conf)
	if err != nil {
		return nil, err
	}

	if err := d.sink.Commit(batch); err != nil {
		return nil, fmt.Errorf("failed to persist configuration: %w", err)
	}

	needed := make(map[string]struct{}, 2*len(batch))
	for _, s := range batch {
		needed[filepath.Clean(s.Path)] = struct{}{}
		needed[filepath.Clean(globalconf.MetadataPath(s.Path))] = struct{}{}
	}
	instanceDir := globalconf.InstanceDir(d.root, src.InstanceIdentifier)
	if err := d.cleanup.Clean(instanceDir, needed); err != nil {
		slog.Error("Failed to delete stale configuration files", "directory", instanceDir, "error", err)
	}

	if d.observer != nil {
		for _, f := range conf.Files {
			d.observer(f)
		}
	}
	return conf, nil
}

// stage fetches, verifies and dispatches every changed file in memory
func (d *ConfigurationDownloader) stage(
	ctx context.Context, src globalconf.Source, dirURL string, conf *globalconf.Configuration,
) ([]Staged, error) {
	base, err := url.Parse(dirURL)
	if err != nil {
		return nil, fmt.Errorf("invalid download URL %q: %w", dirURL, err)
	}

	batch := make([]Staged, 0, len(conf.Files))
	for _, f := range conf.Files {
		path, err := globalconf.FilePath(d.root, src.InstanceIdentifier, f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", globalconf.ErrMalformedConfiguration, err)
		}

		upToDate, err := localCopyMatches(path, f)
		if err != nil {
			return nil, err
		}
		if upToDate {
			slog.Debug("Configuration file is up to date", "content_location", f.ContentLocation, "path", path)
			d.metrics.RecordSkippedFile(ctx, src.InstanceIdentifier)
			batch = append(batch, Staged{File: f, Path: path, Unchanged: true})
			continue
		}

		ref, err := url.Parse(strings.TrimSpace(f.ContentLocation))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid content location %q", globalconf.ErrMalformedConfiguration, f.ContentLocation)
		}
		fileURL := base.ResolveReference(ref).String()

		slog.Info("Downloading configuration content",
			"content_identifier", f.ContentIdentifier,
			"url", fileURL)
		data, err := d.client.Get(ctx, fileURL)
		if err != nil {
			return nil, fmt.Errorf("failed to download content %s: %w", f.ContentIdentifier, err)
		}
		d.metrics.RecordDownloadedBytes(ctx, src.InstanceIdentifier, len(data))

		if err := verify.Content(data, f); err != nil {
			return nil, err
		}
		if _, err := d.dispatcher.Handle(data, f); err != nil {
			return nil, err
		}

		batch = append(batch, Staged{File: f, Path: path, Content: data})
	}
	return batch, nil
}

// localCopyMatches recomputes the hash of the local file and compares it with the declared one
func localCopyMatches(path string, f globalconf.File) (bool, error) {
	// #nosec G304 -- path is derived from the configuration root and sanitized names
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Configuration file does not exist locally", "path", path)
			return false, nil
		}
		return false, fmt.Errorf("failed to read local configuration file: %w", err)
	}

	existing, err := verify.HashBase64(f.HashAlgorithmID, data)
	if err != nil {
		return false, fmt.Errorf("%w: content part %s: %v", globalconf.ErrMalformedConfiguration, f.ContentIdentifier, err)
	}
	if existing != strings.TrimSpace(f.Hash) {
		slog.Debug("Configuration file has changed", "path", path)
		return false, nil
	}
	return true, nil
}
