package hsubs

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"airwatch/internal/domain"
)

const showAnchorTitle = "See all releases for this show"

var (
	reDaySuffix = regexp.MustCompile(` \(.*?\)`)
	reBracketed = regexp.MustCompile(`\[.*?\]`)
)

type scheduleEntry struct {
	day, title, href string
}

// parseSchedule reads weekday headers, show anchors and air times in
// document order and pairs anchors with times by position.
func parseSchedule(doc *html.Node, baseURL string) ([]domain.Item, error) {
	var (
		day     string
		headers int
		entries []scheduleEntry
		times   []string
	)
	walk(doc, func(n *html.Node) bool {
		switch {
		case hasClass(n, "weekday"):
			headers++
			day = strings.TrimSpace(reDaySuffix.ReplaceAllString(text(n), ""))
		case n.Data == "a" && attrIs(n, "title", showAnchorTitle):
			href, _ := attr(n, "href")
			entries = append(entries, scheduleEntry{day: day, title: anchorTitle(n), href: href})
		case hasClass(n, "schedule-time"):
			times = append(times, strings.TrimSpace(text(n)))
		}
		return true
	})
	if headers == 0 {
		return nil, fmt.Errorf("%w: schedule page has no weekday sections", domain.ErrFetchFailed)
	}

	n := min(len(entries), len(times))
	items := make([]domain.Item, 0, n)
	for i := 0; i < n; i++ {
		at, err := domain.ParseClock(times[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrFetchFailed, entries[i].title, err)
		}
		e := entries[i]
		items = append(items, domain.Item{Day: e.day, Title: e.title, AirTime: at, Link: absolute(baseURL, e.href)})
	}
	return items, nil
}

// anchorTitle restores titles whose "@" parts were hidden behind data-cfemail.
func anchorTitle(a *html.Node) string {
	title := strings.TrimSpace(text(a))
	prot := find(a, func(n *html.Node) bool {
		_, ok := attr(n, "data-cfemail")
		return ok
	})
	if prot == nil {
		return title
	}
	enc, _ := attr(prot, "data-cfemail")
	dec, err := decodeCFEmail(enc)
	if err != nil {
		return title
	}
	return reBracketed.ReplaceAllLiteralString(title, dec)
}

func attrIs(n *html.Node, key, want string) bool {
	v, ok := attr(n, key)
	return ok && v == want
}

func absolute(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return base + "/" + strings.TrimLeft(href, "/")
}
