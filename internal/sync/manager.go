package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	gosync "sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/globalconf-client/internal/anchor"
	"github.com/stacklok/globalconf-client/internal/content"
	"github.com/stacklok/globalconf-client/internal/download"
	"github.com/stacklok/globalconf-client/internal/federation"
	"github.com/stacklok/globalconf-client/internal/globalconf"
	"github.com/stacklok/globalconf-client/internal/location"
	"github.com/stacklok/globalconf-client/internal/telemetry"
)

// Phase is a state of a configuration client run
type Phase string

// Run phases, entered in this order
const (
	PhaseInit               Phase = "Init"
	PhaseAnchorLoaded       Phase = "AnchorLoaded"
	PhasePrimaryDownloaded  Phase = "PrimaryDownloaded"
	PhasePartnersDiscovered Phase = "PartnersDiscovered"
	PhasePartnersFiltered   Phase = "PartnersFiltered"
	PhaseReconciled         Phase = "Reconciled"
	PhaseIdle               Phase = "Idle"
)

// ErrRunInProgress is returned when another run holds the run lock
var ErrRunInProgress = errors.New("configuration client run already in progress")

// Result contains the result of a successful run
type Result struct {
	RunID              string
	InstanceIdentifier string

	// Configuration is the primary configuration downloaded in this run
	Configuration *globalconf.Configuration

	// Partners maps every filtered-in partner instance to its download error, nil on success
	Partners map[string]error

	Started  time.Time
	Duration time.Duration
}

// FailedPartners returns the partner instances whose download failed, sorted
func (r *Result) FailedPartners() []string {
	var failed []string
	for instance, err := range r.Partners {
		if err != nil {
			failed = append(failed, instance)
		}
	}
	slices.Sort(failed)
	return failed
}

// Error is a fatal run-level error. Code is the diagnostics error code reported by the
// status endpoint and used as the process exit code.
type Error struct {
	Err     error
	Message string
	Code    int
	Phase   Phase
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(phase Phase, err error, format string, args ...any) *Error {
	return &Error{
		Err:     err,
		Message: fmt.Sprintf(format, args...),
		Code:    globalconf.ErrorCode(err),
		Phase:   phase,
	}
}

// Manager runs the configuration client
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/stacklok/globalconf-client/internal/sync Manager
type Manager interface {
	// PerformSync executes one complete run: anchor, primary configuration, federation partners
	PerformSync(ctx context.Context) (*Result, *Error)
}

// Client is the default Manager
type Client struct {
	root   string
	loader *anchor.Loader
	table  *location.LastSuccessTable

	downloader   download.Downloader
	downloadOpts []download.Option
	dispatcher   *content.Dispatcher

	ownInstance        string
	allowedFederations string
	partnerConcurrency int

	persist            bool
	directoryCleanup   bool
	saveInstanceMarker bool

	metrics  *telemetry.RunMetrics
	clock    clock.Clock
	newRunID func() string
}

// Option configures a Client
type Option func(*Client)

// WithDownloader replaces the downloader built by NewClient
func WithDownloader(d download.Downloader) Option {
	return func(c *Client) {
		c.downloader = d
	}
}

// WithDownloadOptions passes options to the downloader built by NewClient
func WithDownloadOptions(opts ...download.Option) Option {
	return func(c *Client) {
		c.downloadOpts = append(c.downloadOpts, opts...)
	}
}

// WithDispatcher sets the dispatcher used to read private parameters
func WithDispatcher(d *content.Dispatcher) Option {
	return func(c *Client) {
		c.dispatcher = d
	}
}

// WithLastSuccessTable shares a last-success table between clients
func WithLastSuccessTable(table *location.LastSuccessTable) Option {
	return func(c *Client) {
		c.table = table
	}
}

// WithOwnInstance overrides the own instance identifier, which defaults to the anchor's
func WithOwnInstance(instance string) Option {
	return func(c *Client) {
		c.ownInstance = instance
	}
}

// WithAllowedFederations sets the comma-separated allowed partner instances
func WithAllowedFederations(allowed string) Option {
	return func(c *Client) {
		c.allowedFederations = allowed
	}
}

// WithPartnerConcurrency sets how many partners are downloaded at once
func WithPartnerConcurrency(n int) Option {
	return func(c *Client) {
		c.partnerConcurrency = n
	}
}

// WithPersist controls whether downloaded content is written to disk
func WithPersist(persist bool) Option {
	return func(c *Client) {
		c.persist = persist
	}
}

// WithDirectoryCleanup controls whether instance directories of dropped partners are deleted
func WithDirectoryCleanup(cleanup bool) Option {
	return func(c *Client) {
		c.directoryCleanup = cleanup
	}
}

// WithSaveInstanceIdentifier controls whether the instance identifier marker is written
// when the anchor is (re)loaded
func WithSaveInstanceIdentifier(save bool) Option {
	return func(c *Client) {
		c.saveInstanceMarker = save
	}
}

// WithMetrics sets the run metrics
func WithMetrics(metrics *telemetry.RunMetrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithClock sets the clock used for run timings
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.clock = clk
	}
}

// NewClient creates a configuration client writing below root
func NewClient(root string, loader *anchor.Loader, opts ...Option) (*Client, error) {
	c := &Client{
		root:               root,
		loader:             loader,
		partnerConcurrency: 1,
		persist:            true,
		directoryCleanup:   true,
		saveInstanceMarker: true,
		clock:              clock.New(),
		newRunID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.table == nil {
		c.table = location.NewLastSuccessTable()
	}
	if c.dispatcher == nil {
		c.dispatcher = content.NewDispatcher(nil)
	}
	if c.partnerConcurrency < 1 {
		c.partnerConcurrency = 1
	}
	if c.downloader == nil {
		dopts := append([]download.Option{download.WithDispatcher(c.dispatcher)}, c.downloadOpts...)
		if !c.persist {
			dopts = append(dopts,
				download.WithPersistSink(download.NopSink{}),
				download.WithCleanupPolicy(download.NopCleanup{}))
		}
		d, err := download.New(root, c.table, dopts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create configuration downloader: %w", err)
		}
		c.downloader = d
	}
	return c, nil
}

// PerformSync executes one run of the configuration client
func (c *Client) PerformSync(ctx context.Context) (*Result, *Error) {
	result := &Result{
		RunID:    c.newRunID(),
		Partners: make(map[string]error),
		Started:  c.clock.Now(),
	}
	logger := slog.With("run_id", result.RunID)

	unlock, syncErr := c.lock()
	if syncErr != nil {
		return nil, syncErr
	}
	defer unlock()

	success := false
	defer func() {
		result.Duration = c.clock.Since(result.Started)
		c.metrics.RecordRunDuration(ctx, result.InstanceIdentifier, result.Duration, success)
	}()

	logger.Debug("Configuration client run started", "phase", PhaseInit)
	a, syncErr := c.loadAnchor()
	if syncErr != nil {
		logger.Error("Failed to load configuration anchor", "path", c.loader.Path(), "error", syncErr.Err)
		return nil, syncErr
	}
	result.InstanceIdentifier = a.InstanceIdentifier()

	logger.Debug("Downloading primary configuration", "phase", PhaseAnchorLoaded, "instance", result.InstanceIdentifier)
	primary := c.downloader.Download(ctx, a.Source)
	if !primary.Success() {
		err := primary.LastErr()
		logger.Error("Failed to download primary configuration",
			"instance", result.InstanceIdentifier,
			"locations", len(primary.Attempts),
			"error", err,
			"errors", primary.Err())
		return nil, newError(PhaseAnchorLoaded, err,
			"Failed to download configuration of %s: %v", result.InstanceIdentifier, err)
	}
	result.Configuration = primary.Configuration

	partners, syncErr := c.discoverPartners(result.InstanceIdentifier)
	if syncErr != nil {
		logger.Error("Failed to read federation partners", "error", syncErr.Err)
		return nil, syncErr
	}
	logger.Debug("Federation partners discovered", "phase", PhasePartnersDiscovered, "partners", len(partners))

	own := c.ownInstance
	if own == "" {
		own = result.InstanceIdentifier
	}
	filter := federation.NewFilter(own, c.allowedFederations)
	var retained []globalconf.Source
	for _, p := range partners {
		if filter.ShouldDownload(p.InstanceIdentifier) {
			retained = append(retained, p)
			continue
		}
		logger.Debug("Federation partner filtered out", "instance", p.InstanceIdentifier, "mode", filter.Mode())
	}
	c.metrics.RecordPartners(ctx, result.InstanceIdentifier, int64(len(retained)))

	if c.directoryCleanup {
		c.deleteExtraDirectories(result.InstanceIdentifier, retained)
	}

	c.downloadPartners(ctx, retained, result)
	if err := ctx.Err(); err != nil {
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("Configuration client run interrupted: %v", err),
			Code:    globalconf.ErrorCodeInternal,
			Phase:   PhasePartnersFiltered,
		}
	}

	success = true
	logger.Info("Configuration client run completed",
		"phase", PhaseIdle,
		"instance", result.InstanceIdentifier,
		"partners", len(result.Partners),
		"failed_partners", len(result.FailedPartners()))
	return result, nil
}

// lock takes the run lock in the configuration root and returns its release function
func (c *Client) lock() (func(), *Error) {
	if err := os.MkdirAll(c.root, 0750); err != nil {
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("Failed to create configuration directory: %v", err),
			Code:    globalconf.ErrorCodeInternal,
			Phase:   PhaseInit,
		}
	}

	fl := flock.New(filepath.Join(c.root, globalconf.LockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("Failed to acquire run lock: %v", err),
			Code:    globalconf.ErrorCodeInternal,
			Phase:   PhaseInit,
		}
	}
	if !locked {
		return nil, &Error{
			Err:     ErrRunInProgress,
			Message: ErrRunInProgress.Error(),
			Code:    globalconf.ErrorCodeRunInProgress,
			Phase:   PhaseInit,
		}
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("Failed to release run lock", "path", fl.Path(), "error", err)
		}
	}, nil
}

func (c *Client) loadAnchor() (*anchor.Anchor, *Error) {
	a, reloaded, err := c.loader.Reload()
	if err != nil {
		return nil, newError(PhaseInit, err, "Failed to load configuration anchor: %v", err)
	}
	if reloaded && c.saveInstanceMarker {
		if err := c.saveInstanceIdentifier(a.InstanceIdentifier()); err != nil {
			return nil, &Error{
				Err:     err,
				Message: fmt.Sprintf("Failed to save instance identifier: %v", err),
				Code:    globalconf.ErrorCodeInternal,
				Phase:   PhaseInit,
			}
		}
	}
	return a, nil
}

func (c *Client) saveInstanceIdentifier(instance string) error {
	path := filepath.Join(c.root, globalconf.InstanceIdentifierFileName)
	slog.Info("Saving instance identifier", "instance", instance, "path", path)

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, []byte(instance), 0600); err != nil {
		return fmt.Errorf("failed to write temporary file %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", tempPath, err)
	}
	return nil
}

// discoverPartners reads the partner sources from the primary private parameters on disk
func (c *Client) discoverPartners(primary string) ([]globalconf.Source, *Error) {
	path := filepath.Join(globalconf.InstanceDir(c.root, primary), globalconf.PrivateParametersFileName)
	params, err := c.dispatcher.ReadPrivateParameters(path)
	if err != nil {
		return nil, newError(PhasePrimaryDownloaded, err, "Failed to read private parameters: %v", err)
	}
	if params == nil {
		return nil, nil
	}

	partners := make([]globalconf.Source, 0, len(params.ConfigurationSources))
	for _, src := range params.ConfigurationSources {
		if src.InstanceIdentifier == primary {
			continue
		}
		partners = append(partners, src)
	}
	return partners, nil
}

// deleteExtraDirectories removes instance directories of partners that are no longer retained.
// The primary instance directory is always kept.
func (c *Client) deleteExtraDirectories(primary string, retained []globalconf.Source) {
	keep := map[string]struct{}{globalconf.EscapeInstanceIdentifier(primary): {}}
	for _, src := range retained {
		keep[globalconf.EscapeInstanceIdentifier(src.InstanceIdentifier)] = struct{}{}
	}

	entries, err := os.ReadDir(c.root)
	if err != nil {
		slog.Warn("Failed to list configuration directory", "path", c.root, "error", err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, ok := keep[entry.Name()]; ok {
			continue
		}
		dir := filepath.Join(c.root, entry.Name())
		slog.Info("Deleting configuration of dropped instance", "path", dir)
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("Failed to delete instance directory", "path", dir, "error", err)
		}
	}
}

// downloadPartners downloads the shared parameters of every partner. Failures are recorded
// in the result and never abort the run.
func (c *Client) downloadPartners(ctx context.Context, partners []globalconf.Source, result *Result) {
	var mu gosync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.partnerConcurrency)

	for _, src := range partners {
		g.Go(func() error {
			res := c.downloader.Download(gctx, src, globalconf.ContentIDSharedParameters)
			err := res.LastErr()
			if err != nil {
				slog.Warn("Failed to download federation partner configuration",
					"run_id", result.RunID,
					"instance", src.InstanceIdentifier,
					"error", err,
					"errors", res.Err())
			}

			mu.Lock()
			result.Partners[src.InstanceIdentifier] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}
