package hsubs

import (
	"context"
	"encoding/json"
	"net/url"

	"airwatch/pkg/logx"
)

// shorten returns a short link for long, or long itself when the shortener
// is off or fails.
func (c *Client) shorten(ctx context.Context, long string) string {
	if c.cfg.ShortenerURL == "" || long == "" {
		return long
	}
	b, err := c.get(ctx, c.cfg.ShortenerURL+url.QueryEscape(long))
	if err != nil {
		c.log.Debug("shorten failed", logx.Err(err))
		return long
	}
	var out struct {
		ShortURL string `json:"shorturl"`
	}
	if err := json.Unmarshal(b, &out); err != nil || out.ShortURL == "" {
		return long
	}
	return out.ShortURL
}
