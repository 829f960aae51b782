// Package hsubs scrapes the HorribleSubs release schedule and release feed.
package hsubs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"airwatch/internal/domain"
	"airwatch/internal/source"
	"airwatch/pkg/logx"
)

type Config struct {
	BaseURL      string
	SchedulePath string
	Timeout      time.Duration
	UserAgent    string
	// ShortenerURL is a shortener prefix such as "http://mgnet.me/api/create?m=".
	// The escaped link is appended; the JSON answer's shorturl replaces it.
	// Empty disables shortening.
	ShortenerURL string
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://horriblesubs.info"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.SchedulePath == "" {
		c.SchedulePath = "/release-schedule/"
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "airwatch"
	}
	return c
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger

	// showIDs caches the numeric show id per show page link.
	showIDs sync.Map
}

var _ source.Source = (*Client)(nil)

func New(cfg Config, log logx.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: log}
}

func (c *Client) FetchWeek(ctx context.Context) ([]domain.Item, error) {
	doc, err := c.getHTML(ctx, c.cfg.BaseURL+c.cfg.SchedulePath)
	if err != nil {
		return nil, err
	}
	items, err := parseSchedule(doc, c.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	c.log.Debug("schedule fetched", logx.Int("items", len(items)))
	return items, nil
}

func (c *Client) FetchDay(ctx context.Context, day string) ([]domain.Item, error) {
	items, err := c.FetchWeek(ctx)
	if err != nil {
		return nil, err
	}
	return source.FilterDay(items, day), nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: %s", domain.ErrFetchFailed, url, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrFetchFailed, url, err)
	}
	return b, nil
}

func (c *Client) getHTML(ctx context.Context, url string) (*html.Node, error) {
	b, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(string(b)))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrFetchFailed, url, err)
	}
	return doc, nil
}
