// Package cdn uploads images to Cloudinary and derives delivery URLs from
// the returned public IDs.
package cdn

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AnyUserName/mediaopt/internal/retry"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAPIBase      = "https://api.cloudinary.com/v1_1"
	DefaultDeliveryBase = "https://res.cloudinary.com"
	DefaultTimeout      = 60 * time.Second
)

// EagerPresets are materialized synchronously at upload time. g_auto picks
// the crop region from image content.
var EagerPresets = []string{
	"c_fill,g_auto,w_400,h_300",
	"c_fill,g_auto,w_800,h_600",
	"c_fill,g_auto,w_1200,h_630",
}

// Breakpoint settings sent with every upload.
const (
	BreakpointMinWidth  = 200
	BreakpointMaxWidth  = 1920
	BreakpointMaxImages = 5
	BreakpointBytesStep = 20000
)

// incoming transformation: automatic quality and metadata stripping
const incomingTransformation = "q_auto,fl_strip_profile"

// Breakpoint is one responsive derivative.
type Breakpoint struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int64  `json:"bytes"`
	URL       string `json:"url,omitempty"`
	SecureURL string `json:"secure_url"`
}

// Eager is one eagerly generated transformation.
type Eager struct {
	Transformation string `json:"transformation"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Bytes          int64  `json:"bytes"`
	Format         string `json:"format"`
	SecureURL      string `json:"secure_url"`
}

// UploadResult is what a successful upload yields.
type UploadResult struct {
	PublicID     string
	URL          string
	OptimizedURL string
	ThumbnailURL string
	Format       string
	Width        int
	Height       int
	Bytes        int64
	Breakpoints  []Breakpoint
	Eager        []Eager
	Source       string // relative source path
	SourceHash   string
}

// Uploader pushes one file under a public ID.
type Uploader interface {
	Upload(ctx context.Context, path, publicID string) (*UploadResult, error)
}

type uploadResponse struct {
	PublicID    string  `json:"public_id"`
	SecureURL   string  `json:"secure_url"`
	Format      string  `json:"format"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Bytes       int64   `json:"bytes"`
	Eager       []Eager `json:"eager"`
	Breakpoints []struct {
		Breakpoints []Breakpoint `json:"breakpoints"`
	} `json:"responsive_breakpoints"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// APIError is a non-2xx answer from the upload API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudinary: HTTP %d: %s", e.Status, e.Message)
}

// Temporary reports whether a retry may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

// Option configures a Client.
type Option func(*Client)

// WithAPIBase points the client at another API root (tests use httptest).
func WithAPIBase(base string) Option {
	return func(c *Client) { c.http.SetBaseURL(strings.TrimRight(base, "/")) }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithClock fixes the signature timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client talks to the Cloudinary upload API.
type Client struct {
	creds Credentials
	http  *resty.Client
	now   func() time.Time
}

// NewClient returns a client for creds. Incomplete credentials fail with
// ErrNotConfigured.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if !creds.Complete() {
		return nil, ErrNotConfigured
	}
	c := &Client{
		creds: creds,
		http: resty.New().
			SetBaseURL(DefaultAPIBase).
			SetTimeout(DefaultTimeout).
			SetHeader("Accept", "application/json"),
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Params returns the signed form fields for one upload.
func (c *Client) Params(publicID string) map[string]string {
	bp, _ := json.Marshal([]map[string]any{{
		"create_derived": true,
		"min_width":      BreakpointMinWidth,
		"max_width":      BreakpointMaxWidth,
		"max_images":     BreakpointMaxImages,
		"bytes_step":     BreakpointBytesStep,
	}})

	params := map[string]string{
		"public_id":              publicID,
		"overwrite":              "true",
		"invalidate":             "true",
		"eager":                  strings.Join(EagerPresets, "|"),
		"eager_async":            "false",
		"responsive_breakpoints": string(bp),
		"transformation":         incomingTransformation,
		"timestamp":              strconv.FormatInt(c.now().Unix(), 10),
	}
	params["signature"] = Sign(params, c.creds.APISecret)
	params["api_key"] = c.creds.APIKey
	return params
}

// Sign computes the request signature: SHA-1 over the sorted k=v pairs
// joined with & followed by the secret. Empty values and the fields the
// API excludes from signing are skipped.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		switch k {
		case "file", "api_key", "resource_type", "cloud_name", "signature":
			continue
		}
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

// Upload sends one file. The resource type is detected by the service.
func (c *Client) Upload(ctx context.Context, filePath, publicID string) (*UploadResult, error) {
	var ok uploadResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("cloud", c.creds.CloudName).
		SetFormData(c.Params(publicID)).
		SetFile("file", filePath).
		SetResult(&ok).
		SetError(&apiErr).
		Post("/{cloud}/auto/upload")
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filepath.Base(filePath), err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, &APIError{Status: resp.StatusCode(), Message: msg}
	}

	res := &UploadResult{
		PublicID:     ok.PublicID,
		URL:          ok.SecureURL,
		OptimizedURL: c.OptimizedURL(ok.PublicID),
		ThumbnailURL: c.ThumbnailURL(ok.PublicID),
		Format:       ok.Format,
		Width:        ok.Width,
		Height:       ok.Height,
		Bytes:        ok.Bytes,
		Eager:        ok.Eager,
	}
	for _, rb := range ok.Breakpoints {
		res.Breakpoints = append(res.Breakpoints, rb.Breakpoints...)
	}
	return res, nil
}

// OptimizedURL delivers the asset with automatic format and quality.
func (c *Client) OptimizedURL(publicID string) string {
	return DeliveryURL(c.creds.CloudName, "f_auto,q_auto", publicID)
}

// ThumbnailURL delivers a content-aware 300×300 crop.
func (c *Client) ThumbnailURL(publicID string) string {
	return DeliveryURL(c.creds.CloudName, "c_fill,g_auto,w_300,h_300,f_auto,q_auto", publicID)
}

// DeliveryURL builds an image delivery URL with one transformation step.
func DeliveryURL(cloud, transformation, publicID string) string {
	return DefaultDeliveryBase + "/" + path.Join(cloud, "image", "upload", transformation, publicID)
}

// PublicID derives the asset identifier from a path relative to the upload
// root: extension stripped, forward slashes.
func PublicID(relPath string) string {
	p := filepath.ToSlash(relPath)
	p = strings.TrimPrefix(p, "./")
	return strings.TrimSuffix(p, path.Ext(p))
}

// UploadWithRetry retries failed uploads per policy. Exhausted retries are
// logged and yield a nil result; the caller treats nil as "no asset-map
// entry" and moves on.
func UploadWithRetry(ctx context.Context, up Uploader, filePath, publicID string, p retry.Policy, log logrus.FieldLogger) *UploadResult {
	var res *UploadResult
	attempts, err := retry.Do(ctx, p, func(attempt int) error {
		r, err := up.Upload(ctx, filePath, publicID)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Temporary() {
				return retry.Permanent(err)
			}
			if attempt < p.Attempts {
				log.Warnf("upload %s failed (attempt %d/%d): %v", publicID, attempt, p.Attempts, err)
			}
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		log.Errorf("upload %s failed after %d attempt(s): %v", publicID, attempts, err)
		return nil
	}
	return res
}
