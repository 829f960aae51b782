package release

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airwatch/internal/catalog"
	"airwatch/internal/domain"
	"airwatch/internal/eventbus"
	"airwatch/pkg/logx"
)

type fakeSource struct {
	info domain.ReleaseInfo
	err  error
}

func (f fakeSource) FetchRelease(context.Context, domain.Item) (domain.ReleaseInfo, error) {
	return f.info, f.err
}

type sent struct {
	user  int64
	text  string
	links []domain.AssetLink
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []sent
	fail map[int64]error
}

func (f *fakeChannel) Send(_ context.Context, userID int64, text string, links []domain.AssetLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[userID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{user: userID, text: text, links: links})
	return nil
}

func (f *fakeChannel) byUser() map[int64][]sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64][]sent{}
	for _, s := range f.sent {
		out[s.user] = append(out[s.user], s)
	}
	return out
}

var testLinks = []domain.AssetLink{
	{Label: "480p", URL: "https://x/480"},
	{Label: "720p", URL: "https://x/720"},
	{Label: "1080p", URL: "https://x/1080"},
}

// seed stores A and B for Monday and subscribes users 1 and 2 to A.
func seed(t *testing.T) (*catalog.Memory, domain.PendingAction) {
	t.Helper()
	ctx := context.Background()
	store := catalog.NewMemory()
	items := []domain.Item{
		{Day: "Monday", Title: "A", AirTime: domain.MustClock("10:00"), Link: "https://site/a"},
		{Day: "Monday", Title: "B", AirTime: domain.MustClock("12:00"), Link: "https://site/b"},
	}
	gen, err := store.Replace(ctx, items)
	require.NoError(t, err)
	for _, u := range []domain.User{{ID: 1, Username: "alice"}, {ID: 2, FirstName: "Bob"}, {ID: 3, Username: "carol"}} {
		_, err := store.UpsertUser(ctx, u)
		require.NoError(t, err)
	}
	id, err := store.IDForTitle(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, store.Subscribe(ctx, 1, id))
	require.NoError(t, store.Subscribe(ctx, 2, id))
	return store, domain.PendingAction{Kind: domain.NotifyCheck, Item: items[0], Generation: gen}
}

func TestCheckReleased(t *testing.T) {
	t.Parallel()

	store, action := seed(t)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, "release.")
	defer unsub()
	ch := &fakeChannel{}
	d := NewDispatcher(Config{}, store, fakeSource{info: domain.ReleaseInfo{Released: true, Title: "A", Episode: "05", AssetLinks: testLinks}}, ch, bus, logx.Nop())

	out, err := d.Check(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Title: "A", Episode: "05", Released: true, Subscribers: 2, Delivered: 2}, out)

	got := ch.byUser()
	require.Len(t, got, 2)
	require.Len(t, got[1], 1)
	assert.Equal(t, "Hello @alice!\nA episode 05 has released!\nLinks:", got[1][0].text)
	assert.Equal(t, testLinks, got[1][0].links)
	assert.Equal(t, "Hello!\nA episode 05 has released!\nLinks:", got[2][0].text)
	assert.Empty(t, got[3], "user 3 is not subscribed")

	ev := <-events
	assert.Equal(t, eventbus.ReleaseDelivered, ev.Type)
}

func TestCheckNotReleasedSendsOneAnomalyEach(t *testing.T) {
	t.Parallel()

	store, action := seed(t)
	ch := &fakeChannel{}
	d := NewDispatcher(Config{}, store, fakeSource{info: domain.ReleaseInfo{Released: false, Episode: "04", AssetLinks: testLinks}}, ch, nil, logx.Nop())

	out, err := d.Check(context.Background(), action)
	require.NoError(t, err)
	assert.False(t, out.Released)
	assert.Equal(t, 2, out.Delivered)

	for uid, msgs := range ch.byUser() {
		require.Len(t, msgs, 1, "user %d", uid)
		assert.Equal(t, "A was supposed to be out but isn't! Please check the site for further information!", msgs[0].text)
		assert.Empty(t, msgs[0].links)
	}
}

func TestCheckAbortsAfterResync(t *testing.T) {
	t.Parallel()

	store, action := seed(t)
	_, err := store.Replace(context.Background(), []domain.Item{{Day: "Monday", Title: "C", AirTime: domain.MustClock("10:00")}})
	require.NoError(t, err)

	ch := &fakeChannel{}
	d := NewDispatcher(Config{}, store, fakeSource{info: domain.ReleaseInfo{Released: true}}, ch, nil, logx.Nop())

	_, err = d.Check(context.Background(), action)
	require.ErrorIs(t, err, domain.ErrStaleAction)
	assert.Empty(t, ch.byUser())
}

func TestCheckAbortsWhenTitleGone(t *testing.T) {
	t.Parallel()

	store, action := seed(t)
	// same generation, but the title is not in the catalog
	action.Item.Title = "Z"

	ch := &fakeChannel{}
	d := NewDispatcher(Config{}, store, fakeSource{info: domain.ReleaseInfo{Released: true}}, ch, nil, logx.Nop())

	_, err := d.Check(context.Background(), action)
	require.ErrorIs(t, err, domain.ErrStaleAction)
	assert.Empty(t, ch.byUser())
}

func TestCheckIsolatesDeliveryFailures(t *testing.T) {
	t.Parallel()

	store, action := seed(t)
	ch := &fakeChannel{fail: map[int64]error{1: errors.New("bot was blocked by the user")}}
	d := NewDispatcher(Config{Fanout: 1}, store, fakeSource{info: domain.ReleaseInfo{Released: true, Episode: "05", AssetLinks: testLinks}}, ch, nil, logx.Nop())

	out, err := d.Check(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Delivered)
	assert.Equal(t, 1, out.Failed)
	assert.Len(t, ch.byUser()[2], 1)
}

func TestCheckFetchFailure(t *testing.T) {
	t.Parallel()

	store, action := seed(t)
	ch := &fakeChannel{}
	d := NewDispatcher(Config{}, store, fakeSource{err: domain.ErrFetchFailed}, ch, nil, logx.Nop())

	_, err := d.Check(context.Background(), action)
	require.ErrorIs(t, err, domain.ErrFetchFailed)
	assert.Empty(t, ch.byUser())
}
