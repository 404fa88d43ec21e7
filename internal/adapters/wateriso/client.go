package wateriso

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/pkg/metrics"
)

const (
	DefaultBaseURL      = "https://wateriso.utah.edu/api"
	DefaultSitesPath    = "/sites_for_mobile.php"
	DefaultSiteInfoPath = "/siteinfo.php"

	maxBodyBytes = 32 << 20
)

// Options configures a Client. Zero values take the public service defaults.
type Options struct {
	BaseURL      string
	SitesPath    string
	SiteInfoPath string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client queries the water isotope site service over HTTP POST + JSON.
type Client struct {
	sitesURL string
	infoURL  string
	http     *http.Client
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.SitesPath == "" {
		opts.SitesPath = DefaultSitesPath
	}
	if opts.SiteInfoPath == "" {
		opts.SiteInfoPath = DefaultSiteInfoPath
	}
	if opts.HTTPClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		sitesURL: base + opts.SitesPath,
		infoURL:  base + opts.SiteInfoPath,
		http:     opts.HTTPClient,
		tracer:   otel.Tracer("fieldsync/wateriso"),
		logger:   opts.Logger,
	}
}

type bounds struct {
	Min float64 `json:"Min"`
	Max float64 `json:"Max"`
}

type windowQuery struct {
	Latitude  bounds `json:"latitude"`
	Longitude bounds `json:"longitude"`
}

// allSitesQuery sends every filter explicitly as null.
type allSitesQuery struct {
	Latitude       *bounds  `json:"latitude"`
	Longitude      *bounds  `json:"longitude"`
	Elevation      *bounds  `json:"elevation"`
	Countries      []string `json:"countries"`
	States         []string `json:"states"`
	CollectionDate *bounds  `json:"collection_date"`
	Types          []string `json:"types"`
	H2             *bounds  `json:"h2"`
	O18            *bounds  `json:"o18"`
	ProjectIDs     []string `json:"project_ids"`
}

type detailQuery struct {
	SiteID string `json:"site_id"`
}

// SitesInWindow returns the partial sites inside w, or all sites when w is nil.
func (c *Client) SitesInWindow(ctx context.Context, w *domain.Window) ([]domain.Site, error) {
	var body any = allSitesQuery{}
	if w != nil {
		body = windowQuery{
			Latitude:  bounds{Min: w.Min.Lat, Max: w.Max.Lat},
			Longitude: bounds{Min: w.Min.Lon, Max: w.Max.Lon},
		}
	}
	ctx, span := c.tracer.Start(ctx, "wateriso.SitesInWindow", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Bool("window", w != nil))

	raw, err := c.post(ctx, "sites", c.sitesURL, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	sites, err := DecodeSites(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed response")
		return nil, err
	}
	span.SetAttributes(attribute.Int("sites", len(sites)))
	return sites, nil
}

// SiteDetail returns the full record for one site.
func (c *Client) SiteDetail(ctx context.Context, id string) (*domain.Site, error) {
	ctx, span := c.tracer.Start(ctx, "wateriso.SiteDetail", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("site_id", id))

	raw, err := c.post(ctx, "siteinfo", c.infoURL, detailQuery{SiteID: id})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	site, status, err := DecodeSiteDetail(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed response")
		return nil, err
	}
	c.logger.Debug("site detail received", "site_id", site.ID, "status", status)
	return site, nil
}

func (c *Client) post(ctx context.Context, endpoint, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.RemoteDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s request: HTTP %d", endpoint, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	return raw, nil
}
