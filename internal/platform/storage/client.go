package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const (
	defaultUploadExpiry   = 15 * time.Minute
	defaultDownloadExpiry = 15 * time.Minute
	maxExpiry             = time.Hour
)

var (
	ErrMissingLocation    = errors.New("storage: bucket and object are required")
	ErrContentTypeDenied  = errors.New("storage: content type not allowed")
	ErrExpiryTooLong      = errors.New("storage: expiry exceeds one hour")
	errSignerNotAvailable = errors.New("storage: signer is required")
)

// SignedURL is a time-limited link the client uses directly against Cloud Storage.
type SignedURL struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// UploadRequest describes a PUT URL for a browser upload.
type UploadRequest struct {
	ContentType  string
	AllowedTypes []string
	MaxBytes     int64
	ExpiresIn    time.Duration
}

// DownloadRequest describes a GET URL; FileName sets the attachment name.
type DownloadRequest struct {
	FileName  string
	ExpiresIn time.Duration
}

// Client signs V4 URLs.
type Client struct {
	signer Signer
	now    func() time.Time
}

// ClientOption customises Client.
type ClientOption func(*Client)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a URL signer.
func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errSignerNotAvailable
	}
	c := &Client{signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// UploadURL signs a PUT for object. The upload must send the returned headers.
func (c *Client) UploadURL(ctx context.Context, bucket, object string, req UploadRequest) (SignedURL, error) {
	if strings.TrimSpace(bucket) == "" || strings.TrimSpace(object) == "" {
		return SignedURL{}, ErrMissingLocation
	}
	mediaType, _, err := mime.ParseMediaType(req.ContentType)
	if err != nil {
		return SignedURL{}, fmt.Errorf("%w: %q", ErrContentTypeDenied, req.ContentType)
	}
	if len(req.AllowedTypes) > 0 && !slices.Contains(req.AllowedTypes, mediaType) {
		return SignedURL{}, fmt.Errorf("%w: %q", ErrContentTypeDenied, mediaType)
	}
	expiry, err := expiryOrDefault(req.ExpiresIn, defaultUploadExpiry)
	if err != nil {
		return SignedURL{}, err
	}

	headers := map[string]string{"Content-Type": req.ContentType}
	var extra []string
	if req.MaxBytes > 0 {
		rangeValue := fmt.Sprintf("0,%d", req.MaxBytes)
		headers["x-goog-content-length-range"] = rangeValue
		extra = append(extra, "x-goog-content-length-range:"+rangeValue)
	}
	expires := c.now().Add(expiry)
	signed, err := gcs.SignedURL(bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         gcs.SigningSchemeV4,
		Method:         http.MethodPut,
		ContentType:    req.ContentType,
		Headers:        extra,
		Expires:        expires,
		SignBytes:      func(b []byte) ([]byte, error) { return c.signer.SignBytes(ctx, b) },
	})
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return SignedURL{URL: signed, Method: http.MethodPut, ExpiresAt: expires, Headers: headers}, nil
}

// DownloadURL signs a GET for object.
func (c *Client) DownloadURL(ctx context.Context, bucket, object string, req DownloadRequest) (SignedURL, error) {
	if strings.TrimSpace(bucket) == "" || strings.TrimSpace(object) == "" {
		return SignedURL{}, ErrMissingLocation
	}
	expiry, err := expiryOrDefault(req.ExpiresIn, defaultDownloadExpiry)
	if err != nil {
		return SignedURL{}, err
	}
	var query url.Values
	if name := strings.TrimSpace(req.FileName); name != "" {
		query = url.Values{"response-content-disposition": {mime.FormatMediaType("attachment", map[string]string{"filename": name})}}
	}
	expires := c.now().Add(expiry)
	signed, err := gcs.SignedURL(bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID:  c.signer.Email(),
		Scheme:          gcs.SigningSchemeV4,
		Method:          http.MethodGet,
		Expires:         expires,
		QueryParameters: query,
		SignBytes:       func(b []byte) ([]byte, error) { return c.signer.SignBytes(ctx, b) },
	})
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage: sign download url: %w", err)
	}
	return SignedURL{URL: signed, Method: http.MethodGet, ExpiresAt: expires}, nil
}

func expiryOrDefault(requested, fallback time.Duration) (time.Duration, error) {
	if requested <= 0 {
		return fallback, nil
	}
	if requested > maxExpiry {
		return 0, ErrExpiryTooLong
	}
	return requested, nil
}
