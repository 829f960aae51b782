package hsubs

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"airwatch/internal/domain"
	"airwatch/pkg/logx"
)

var (
	reDigits      = regexp.MustCompile(`\d+`)
	qualityLabels = []string{"480p", "720p", "1080p"}
	magnetTitle   = "Magnet Link"
)

// FetchRelease checks whether the newest release of it is dated today.
func (c *Client) FetchRelease(ctx context.Context, it domain.Item) (domain.ReleaseInfo, error) {
	id, err := c.showID(ctx, it.Link)
	if err != nil {
		return domain.ReleaseInfo{}, err
	}
	doc, err := c.getHTML(ctx, fmt.Sprintf("%s/api.php?method=getshows&type=show&showid=%s", c.cfg.BaseURL, id))
	if err != nil {
		return domain.ReleaseInfo{}, err
	}
	info, err := parseRelease(doc)
	if err != nil {
		return domain.ReleaseInfo{}, err
	}
	for i := range info.AssetLinks {
		info.AssetLinks[i].URL = c.shorten(ctx, info.AssetLinks[i].URL)
	}
	c.log.Debug("release checked", logx.String("title", it.Title), logx.Bool("released", info.Released), logx.String("episode", info.Episode))
	return info, nil
}

func (c *Client) showID(ctx context.Context, link string) (string, error) {
	if v, ok := c.showIDs.Load(link); ok {
		return v.(string), nil
	}
	doc, err := c.getHTML(ctx, link)
	if err != nil {
		return "", err
	}
	id, err := parseShowID(doc)
	if err != nil {
		return "", err
	}
	c.showIDs.Store(link, id)
	return id, nil
}

func parseShowID(doc *html.Node) (string, error) {
	script := find(doc, func(n *html.Node) bool {
		return n.Data == "script" && attrIs(n, "type", "text/javascript") && strings.Contains(text(n), "hs_showid")
	})
	if script == nil {
		return "", fmt.Errorf("%w: show page has no hs_showid", domain.ErrFetchFailed)
	}
	id := reDigits.FindString(text(script))
	if id == "" {
		return "", fmt.Errorf("%w: hs_showid without digits", domain.ErrFetchFailed)
	}
	return id, nil
}

// parseRelease reads the newest entry of the release feed. The entry is
// released when its date span reads "Today".
func parseRelease(doc *html.Node) (domain.ReleaseInfo, error) {
	container := find(doc, func(n *html.Node) bool { return hasClass(n, "rls-info-container") })
	if container == nil {
		return domain.ReleaseInfo{}, fmt.Errorf("%w: release feed has no entries", domain.ErrFetchFailed)
	}
	entry := container.FirstChild
	for entry != nil && entry.Type != html.ElementNode {
		entry = entry.NextSibling
	}
	if entry == nil {
		return domain.ReleaseInfo{}, fmt.Errorf("%w: empty release entry", domain.ErrFetchFailed)
	}
	span := find(entry, tag("span"))
	if span == nil {
		return domain.ReleaseInfo{}, fmt.Errorf("%w: release entry without date", domain.ErrFetchFailed)
	}

	info := domain.ReleaseInfo{Released: strings.TrimSpace(text(span)) == "Today"}
	if sib := span.NextSibling; sib != nil && sib.Type == html.TextNode {
		info.Title = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sib.Data), "-"))
	}
	if strong := find(entry, tag("strong")); strong != nil {
		info.Episode = strings.TrimSpace(text(strong))
	}
	if !info.Released {
		return info, nil
	}

	magnets := findAll(doc, func(n *html.Node) bool { return n.Data == "a" && attrIs(n, "title", magnetTitle) })
	for i, a := range magnets {
		if i >= len(qualityLabels) {
			break
		}
		href, _ := attr(a, "href")
		info.AssetLinks = append(info.AssetLinks, domain.AssetLink{Label: qualityLabels[i], URL: href})
	}
	return info, nil
}
