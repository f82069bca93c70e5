// Package secrets resolves secret:// configuration references against Secret Manager, with a
// .secrets.local file for offline development.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sauber-detailing/pos-api/internal/platform/config"
)

const (
	defaultFallbackFile = ".secrets.local"
	meterName           = "github.com/sauber-detailing/pos-api/internal/platform/secrets"
)

// ErrSecretNotFound is returned when neither Secret Manager nor the fallback file has a value.
var ErrSecretNotFound = errors.New("secrets: secret not found")

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves and caches secrets for the lifetime of the process.
type Fetcher struct {
	client     accessor
	ownsClient bool
	projectID  string
	fallback   string
	logger     *zap.Logger
	retry      gax.CallOption

	mu    sync.Mutex
	cache map[string]string

	fallbackOnce sync.Once
	fallbackVals map[string]string

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type fetcherOptions struct {
	projectID  string
	fallback   string
	logger     *zap.Logger
	meter      metric.Meter
	client     accessor
	clientOpts []option.ClientOption
}

// Option customises NewFetcher.
type Option func(*fetcherOptions)

// WithProject sets the project holding the secrets.
func WithProject(projectID string) Option {
	return func(o *fetcherOptions) { o.projectID = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the .secrets.local path. Empty disables the fallback.
func WithFallbackFile(path string) Option {
	return func(o *fetcherOptions) { o.fallback = strings.TrimSpace(path) }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *fetcherOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeter overrides the global meter provider.
func WithMeter(meter metric.Meter) Option {
	return func(o *fetcherOptions) { o.meter = meter }
}

// WithClientOptions forwards options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *fetcherOptions) { o.clientOpts = append(o.clientOpts, opts...) }
}

func withAccessor(client accessor) Option {
	return func(o *fetcherOptions) { o.client = client }
}

// NewFetcher connects to Secret Manager. When the client cannot be built, the fetcher runs on
// the fallback file alone.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherOptions{fallback: defaultFallbackFile, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		client:    cfg.client,
		projectID: cfg.projectID,
		fallback:  cfg.fallback,
		logger:    cfg.logger,
		cache:     make(map[string]string),
		retry: gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{codes.Unavailable, codes.DeadlineExceeded}, gax.Backoff{
				Initial:    100 * time.Millisecond,
				Max:        2 * time.Second,
				Multiplier: 2,
			})
		}),
	}
	var err error
	if f.latency, err = meter.Float64Histogram("secrets.fetch.latency", metric.WithUnit("ms"),
		metric.WithDescription("Secret resolution latency")); err != nil {
		f.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	}
	if f.cacheHits, err = meter.Int64Counter("secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from cache")); err != nil {
		f.logger.Warn("secrets: cache metric unavailable", zap.Error(err))
	}

	if f.client == nil && f.projectID != "" {
		client, err := secretmanager.NewClient(ctx, cfg.clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			f.client, f.ownsClient = client, true
		}
	}
	return f, nil
}

// Close releases the Secret Manager client if the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	name, version, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := name + "@" + version

	f.mu.Lock()
	value, ok := f.cache[key]
	f.mu.Unlock()
	if ok {
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1)
		}
		f.observe(ctx, start, "cache")
		return value, nil
	}

	source := "remote"
	value, err = f.fetchRemote(ctx, name, version)
	if err != nil {
		if !fallbackAllowed(err) {
			f.observe(ctx, start, "error")
			return "", fmt.Errorf("secrets: resolve %s: %w", name, err)
		}
		f.logger.Debug("secrets: using fallback file", zap.String("secret", name), zap.Error(err))
		fallback, found := f.lookupFallback(name)
		if !found {
			f.observe(ctx, start, "error")
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		value, source = fallback, "fallback"
	}

	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
	f.observe(ctx, start, source)
	return value, nil
}

var errNoRemote = errors.New("secrets: secret manager not configured")

func (f *Fetcher) fetchRemote(ctx context.Context, name, version string) (string, error) {
	if f.client == nil || f.projectID == "" {
		return "", errNoRemote
	}
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource}, f.retry)
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", resource)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) lookupFallback(name string) (string, bool) {
	f.fallbackOnce.Do(func() {
		f.fallbackVals = map[string]string{}
		if f.fallback == "" {
			return
		}
		file, err := os.Open(f.fallback)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.logger.Warn("secrets: cannot open fallback file", zap.Error(err))
			}
			return
		}
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			if parsed, _, err := parseReference(strings.TrimSpace(key)); err == nil {
				key = parsed
			}
			f.fallbackVals[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	})
	value, ok := f.fallbackVals[name]
	return value, ok
}

func (f *Fetcher) observe(ctx context.Context, start time.Time, source string) {
	if f.latency == nil {
		return
	}
	f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

// parseReference accepts secret://name, sm://name and an optional ?version=N.
func parseReference(ref string) (name, version string, err error) {
	normalized := config.NormalizeSecretReference(ref)
	u, err := url.Parse(normalized)
	if err != nil || u.Scheme != "secret" {
		return "", "", fmt.Errorf("secrets: invalid reference %q", ref)
	}
	name = strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return "", "", fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	version = strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = "latest"
	}
	return name, version, nil
}

func fallbackAllowed(err error) bool {
	if errors.Is(err, errNoRemote) {
		return true
	}
	switch status.Code(err) {
	case codes.NotFound, codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
