package hsubs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"airwatch/internal/domain"
	"airwatch/pkg/logx"
)

const schedulePage = `<html><body><div class="entry-content">
<h2 class="weekday">Monday (Today)</h2>
<table>
<tr><td><a title="See all releases for this show" href="/shows/show-a">Show A</a></td><td class="schedule-time">10:00</td></tr>
<tr><td><a title="See all releases for this show" href="/shows/idolm">Idolm<span class="__cf_email__" data-cfemail="420231362730">[email&#160;protected]</span> Cinderella</a></td><td class="schedule-time">12:00</td></tr>
</table>
<h2 class="weekday">Tuesday</h2>
<table>
<tr><td><a title="See all releases for this show" href="https://elsewhere.example/shows/c">Show C</a></td><td class="schedule-time">09:30</td></tr>
</table>
</div></body></html>`

const showPage = `<html><head><script type="text/javascript">var hs_showid = 1234;</script></head><body></body></html>`

const releasedFeed = `<div class="rls-info-container" id="5"><a class="rls-label" href="/shows/show-a#05"><span class="rls-date">Today</span> Show A - <strong>05</strong></a>
<div class="rls-links-container">
<div class="link-480p"><a title="Magnet Link" href="magnet:?xt=480">Magnet</a></div>
<div class="link-720p"><a title="Magnet Link" href="magnet:?xt=720">Magnet</a></div>
<div class="link-1080p"><a title="Magnet Link" href="magnet:?xt=1080">Magnet</a></div>
</div></div>
<div class="rls-info-container" id="4"><a class="rls-label"><span class="rls-date">09/23/19</span> Show A - <strong>04</strong></a>
<a title="Magnet Link" href="magnet:?xt=old">Magnet</a></div>`

const pendingFeed = `<div class="rls-info-container" id="4"><a class="rls-label"><span class="rls-date">09/23/19</span> Show A - <strong>04</strong></a>
<a title="Magnet Link" href="magnet:?xt=old">Magnet</a></div>`

func newSite(t *testing.T, feed string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/release-schedule/", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(schedulePage)) })
	mux.HandleFunc("/shows/show-a", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(showPage)) })
	mux.HandleFunc("/api.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("showid") != "1234" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(feed))
	})
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		m := r.URL.Query().Get("m")
		_, _ = w.Write([]byte(`{"shorturl":"https://s.example/` + strings.TrimPrefix(m, "magnet:?xt=") + `"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchWeek(t *testing.T) {
	t.Parallel()

	srv := newSite(t, releasedFeed)
	c := New(Config{BaseURL: srv.URL}, logx.Nop())

	items, err := c.FetchWeek(context.Background())
	if err != nil {
		t.Fatalf("FetchWeek() = %v", err)
	}
	want := []domain.Item{
		{Day: "Monday", Title: "Show A", AirTime: domain.MustClock("10:00"), Link: srv.URL + "/shows/show-a"},
		{Day: "Monday", Title: "Idolm@ster Cinderella", AirTime: domain.MustClock("12:00"), Link: srv.URL + "/shows/idolm"},
		{Day: "Tuesday", Title: "Show C", AirTime: domain.MustClock("09:30"), Link: "https://elsewhere.example/shows/c"},
	}
	if len(items) != len(want) {
		t.Fatalf("FetchWeek() = %d items, want %d", len(items), len(want))
	}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("item %d = %+v, want %+v", i, items[i], want[i])
		}
	}

	tuesday, err := c.FetchDay(context.Background(), "tuesday")
	if err != nil || len(tuesday) != 1 || tuesday[0].Title != "Show C" {
		t.Fatalf("FetchDay(tuesday) = %+v, %v", tuesday, err)
	}
}

func TestFetchWeekFailureIsNotEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}, logx.Nop()).FetchWeek(context.Background())
	if !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("FetchWeek() = %v, want ErrFetchFailed", err)
	}
}

func TestFetchWeekWithoutMarkup(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>maintenance</body></html>"))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}, logx.Nop()).FetchWeek(context.Background())
	if !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("FetchWeek() = %v, want ErrFetchFailed", err)
	}
}

func TestFetchReleaseReleased(t *testing.T) {
	t.Parallel()

	srv := newSite(t, releasedFeed)
	c := New(Config{BaseURL: srv.URL, ShortenerURL: srv.URL + "/short?m="}, logx.Nop())

	info, err := c.FetchRelease(context.Background(), domain.Item{Title: "Show A", Link: srv.URL + "/shows/show-a"})
	if err != nil {
		t.Fatalf("FetchRelease() = %v", err)
	}
	if !info.Released || info.Title != "Show A" || info.Episode != "05" {
		t.Fatalf("FetchRelease() = %+v", info)
	}
	want := []domain.AssetLink{
		{Label: "480p", URL: "https://s.example/480"},
		{Label: "720p", URL: "https://s.example/720"},
		{Label: "1080p", URL: "https://s.example/1080"},
	}
	if len(info.AssetLinks) != len(want) {
		t.Fatalf("AssetLinks = %+v", info.AssetLinks)
	}
	for i := range want {
		if info.AssetLinks[i] != want[i] {
			t.Fatalf("AssetLinks[%d] = %+v, want %+v", i, info.AssetLinks[i], want[i])
		}
	}
}

func TestFetchReleaseNotYet(t *testing.T) {
	t.Parallel()

	srv := newSite(t, pendingFeed)
	c := New(Config{BaseURL: srv.URL}, logx.Nop())

	info, err := c.FetchRelease(context.Background(), domain.Item{Title: "Show A", Link: srv.URL + "/shows/show-a"})
	if err != nil {
		t.Fatalf("FetchRelease() = %v", err)
	}
	if info.Released || info.Episode != "04" || len(info.AssetLinks) != 0 {
		t.Fatalf("FetchRelease() = %+v, want unreleased without links", info)
	}
}

func TestDecodeCFEmail(t *testing.T) {
	t.Parallel()

	got, err := decodeCFEmail("420231362730")
	if err != nil || got != "@ster" {
		t.Fatalf("decodeCFEmail() = %q, %v", got, err)
	}
	if _, err := decodeCFEmail("4z"); err == nil {
		t.Fatal("decodeCFEmail(bad hex) = nil error")
	}
	if _, err := decodeCFEmail("421"); err == nil {
		t.Fatal("decodeCFEmail(odd) = nil error")
	}
}
