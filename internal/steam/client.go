// Package steam talks to the Steam Workshop: the published file details
// API for titles and update timestamps, and the community changelog page.
package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/HendryAvila/modwatch/internal/mods"
)

const (
	// DefaultDetailsURL is the GetPublishedFileDetails endpoint.
	DefaultDetailsURL = "https://api.steampowered.com/ISteamRemoteStorage/GetPublishedFileDetails/v1/"

	defaultTimeout   = 10 * time.Second
	defaultRate      = 10
	defaultUserAgent = "modwatch/1.0"

	// resultOK is the per-item result code for a found file.
	resultOK = 1
)

// FetchError is returned when metadata for a single mod cannot be fetched.
type FetchError struct {
	WorkshopID string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching workshop item %s: %v", e.WorkshopID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Config configures the workshop client.
type Config struct {
	DetailsURL string
	APIKey     string
	Timeout    time.Duration
	// RequestsPerSecond paces calls across all goroutines sharing the client.
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

func (c *Config) defaults() {
	if c.DetailsURL == "" {
		c.DetailsURL = DefaultDetailsURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = defaultRate
	}
	if c.Burst <= 0 {
		c.Burst = int(c.RequestsPerSecond)
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

// Client fetches published file details. Safe for concurrent use.
type Client struct {
	http    *http.Client
	cfg     Config
	limiter *rate.Limiter
}

// New creates a workshop client.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

type detailsResponse struct {
	Response struct {
		Result  int `json:"result"`
		Details []struct {
			PublishedFileID string `json:"publishedfileid"`
			Result          int    `json:"result"`
			Title           string `json:"title"`
			TimeUpdated     int64  `json:"time_updated"`
			Description     string `json:"description"`
		} `json:"publishedfiledetails"`
	} `json:"response"`
}

// Fetch returns title, last update time and description for one mod.
func (c *Client) Fetch(ctx context.Context, workshopID string) (mods.Metadata, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return mods.Metadata{}, &FetchError{WorkshopID: workshopID, Err: err}
	}

	form := url.Values{}
	form.Set("itemcount", "1")
	form.Set("publishedfileids[0]", workshopID)
	if c.cfg.APIKey != "" {
		form.Set("key", c.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.DetailsURL, strings.NewReader(form.Encode()))
	if err != nil {
		return mods.Metadata{}, &FetchError{WorkshopID: workshopID, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return mods.Metadata{}, &FetchError{WorkshopID: workshopID, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return mods.Metadata{}, &FetchError{
			WorkshopID: workshopID,
			Err:        fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var parsed detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return mods.Metadata{}, &FetchError{WorkshopID: workshopID, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(parsed.Response.Details) == 0 {
		return mods.Metadata{}, &FetchError{WorkshopID: workshopID, Err: fmt.Errorf("no details returned")}
	}

	d := parsed.Response.Details[0]
	if d.Result != 0 && d.Result != resultOK {
		return mods.Metadata{}, &FetchError{WorkshopID: workshopID, Err: fmt.Errorf("item result code %d", d.Result)}
	}

	return mods.Metadata{
		Title:       d.Title,
		TimeUpdated: d.TimeUpdated,
		Description: d.Description,
	}, nil
}
