package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"airwatch/internal/domain"
	"airwatch/internal/transport"
	"airwatch/pkg/logx"
	"airwatch/pkg/tgui"
)

const subGroup = "sub"

// SubscriptionStore is the part of the catalog the subscription UI needs.
type SubscriptionStore interface {
	UpsertUser(ctx context.Context, u domain.User) (created bool, err error)
	ItemsForDay(ctx context.Context, day string) ([]domain.Item, error)
	Item(ctx context.Context, id int64) (domain.Item, error)
	IsSubscribed(ctx context.Context, userID, itemID int64) (bool, error)
	Subscribe(ctx context.Context, userID, itemID int64) error
	Unsubscribe(ctx context.Context, userID, itemID int64) error
	SubscriptionsOf(ctx context.Context, userID int64) ([]domain.Item, error)
}

// Texts are the user-facing strings of the subscription UI.
// "{name}" in the greetings is replaced with the user's display name.
type Texts struct {
	ShowsDay     string
	PickDay      string
	PMOnly       string
	GreetSeen    string
	GreetNotSeen string
	NoSubs       string
	ZoneLabel    string
}

func DefaultTexts() Texts {
	return Texts{
		ShowsDay:     "Shows airing on",
		PickDay:      "Pick a day to browse its shows:",
		PMOnly:       "Please message me privately to manage your subscriptions.",
		GreetSeen:    "Welcome back, {name}!",
		GreetNotSeen: "Hi {name}! I will ping you when the shows you follow get released.",
		NoSubs:       "You are not subscribed to anything yet. Use /start to pick shows.",
		ZoneLabel:    "PST",
	}
}

type SubscriptionUI struct {
	store   SubscriptionStore
	adapter transport.Adapter
	days    []string

	mu    sync.RWMutex
	texts Texts
}

func NewSubscriptionUI(store SubscriptionStore, adapter transport.Adapter, days []string, texts Texts) *SubscriptionUI {
	return &SubscriptionUI{store: store, adapter: adapter, days: append([]string(nil), days...), texts: texts}
}

// SetTexts swaps the UI strings; used by config hot reload.
func (u *SubscriptionUI) SetTexts(t Texts) {
	u.mu.Lock()
	u.texts = t
	u.mu.Unlock()
}

func (u *SubscriptionUI) text() Texts {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.texts
}

func (u *SubscriptionUI) Commands() []Command {
	return []Command{
		{Name: "start", Description: "Pick shows to follow", Handle: u.handleStart},
		{Name: "subs", Aliases: []string{"subscriptions"}, Description: "List the shows you follow", Handle: u.handleSubs},
	}
}

func (u *SubscriptionUI) Callbacks() []CallbackRoute {
	return []CallbackRoute{
		{Group: subGroup, Action: "day", Handle: u.handleDay},
		{Group: subGroup, Action: "toggle", Handle: u.handleToggle},
		{Group: subGroup, Action: "back", Handle: u.handleBack},
	}
}

func (u *SubscriptionUI) handleStart(ctx context.Context, req *Request) error {
	t := u.text()
	if !req.Private {
		_, err := u.adapter.SendText(ctx, req.Chat, t.PMOnly, nil)
		return err
	}
	user := domain.User{ID: req.FromID, Username: req.Username, FirstName: req.FirstName}
	created, err := u.store.UpsertUser(ctx, user)
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	greet := t.GreetSeen
	if created {
		greet = t.GreetNotSeen
		req.Logger.Info("user registered", logx.String("username", req.Username))
	}
	greet = strings.ReplaceAll(greet, "{name}", user.DisplayName())
	text := strings.TrimSpace(greet + "\n\n" + t.PickDay)
	_, err = u.adapter.SendText(ctx, req.Chat, text, &transport.SendOptions{Markup: u.dayPicker()})
	return err
}

func (u *SubscriptionUI) handleSubs(ctx context.Context, req *Request) error {
	t := u.text()
	items, err := u.store.SubscriptionsOf(ctx, req.FromID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		_, err = u.adapter.SendText(ctx, req.Chat, t.NoSubs, nil)
		return err
	}
	lines := []tgui.H{tgui.B(fmt.Sprintf("Following %d show(s)", len(items)))}
	for _, it := range items {
		lines = append(lines, tgui.H("• "+tgui.Esc(it.Title).String()+" "+tgui.I(it.Day+" "+it.AirTime.String()+" "+t.ZoneLabel).String()))
	}
	_, err = u.adapter.SendText(ctx, req.Chat, tgui.Lines(lines...).String(), &transport.SendOptions{ParseMode: "HTML"})
	return err
}

func (u *SubscriptionUI) handleDay(ctx context.Context, req *Request, payload string) error {
	idx, err := u.parseDay(payload)
	if err != nil {
		return err
	}
	return u.showDay(ctx, req, idx)
}

func (u *SubscriptionUI) handleToggle(ctx context.Context, req *Request, payload string) error {
	dayRaw, idRaw, ok := strings.Cut(payload, ":")
	if !ok {
		return fmt.Errorf("malformed toggle payload %q", payload)
	}
	idx, err := u.parseDay(dayRaw)
	if err != nil {
		return err
	}
	itemID, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed item id %q", idRaw)
	}

	it, err := u.store.Item(ctx, itemID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// the catalog was rebuilt since the keyboard was drawn
		req.Answer = "This show is no longer on the schedule."
		return u.showDay(ctx, req, idx)
	case err != nil:
		return err
	}

	if _, err := u.store.UpsertUser(ctx, domain.User{ID: req.FromID, Username: req.Username, FirstName: req.FirstName}); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	subscribed, err := u.store.IsSubscribed(ctx, req.FromID, itemID)
	if err != nil {
		return err
	}
	if subscribed {
		err = u.store.Unsubscribe(ctx, req.FromID, itemID)
		req.Answer = "Unsubscribed from " + it.Title
	} else {
		err = u.store.Subscribe(ctx, req.FromID, itemID)
		req.Answer = "Subscribed to " + it.Title
	}
	if err != nil {
		req.Answer = ""
		return err
	}
	req.Logger.Debug("subscription toggled", logx.Int64("item_id", itemID), logx.Bool("subscribed", !subscribed))
	return u.showDay(ctx, req, idx)
}

func (u *SubscriptionUI) handleBack(ctx context.Context, req *Request, _ string) error {
	return u.adapter.EditText(ctx, u.ref(req), u.text().PickDay, &transport.SendOptions{Markup: u.dayPicker()})
}

func (u *SubscriptionUI) showDay(ctx context.Context, req *Request, idx int) error {
	t := u.text()
	day := u.days[idx]
	items, err := u.store.ItemsForDay(ctx, day)
	if err != nil {
		return err
	}
	mine, err := u.store.SubscriptionsOf(ctx, req.FromID)
	if err != nil {
		return err
	}
	subscribed := make(map[int64]bool, len(mine))
	for _, it := range mine {
		subscribed[it.ID] = true
	}

	kb := tgui.NewInline()
	for _, it := range items {
		data, err := tgui.Data(subGroup, "toggle", strconv.Itoa(idx), strconv.FormatInt(it.ID, 10))
		if err != nil {
			req.Logger.Warn("show button skipped", logx.String("title", it.Title), logx.Err(err))
			continue
		}
		kb.Row(tgui.Btn(showLabel(it, subscribed[it.ID], t.ZoneLabel), data))
	}
	back, _ := tgui.Data(subGroup, "back")
	kb.Row(tgui.Btn("⏪ Back", back))

	text := strings.TrimSpace(t.ShowsDay + " " + day + " :")
	return u.adapter.EditText(ctx, u.ref(req), text, &transport.SendOptions{Markup: kb.Markup()})
}

func (u *SubscriptionUI) dayPicker() *tele.ReplyMarkup {
	btns := make([]tele.Btn, 0, len(u.days))
	for i, d := range u.days {
		data, _ := tgui.Data(subGroup, "day", strconv.Itoa(i))
		btns = append(btns, tgui.Btn(d, data))
	}
	return tgui.NewInline().Grid(2, btns).Markup()
}

func (u *SubscriptionUI) parseDay(raw string) (int, error) {
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 || idx >= len(u.days) {
		return 0, fmt.Errorf("bad day index %q", raw)
	}
	return idx, nil
}

func (u *SubscriptionUI) ref(req *Request) transport.MessageRef {
	return transport.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: req.MessageID}
}

func showLabel(it domain.Item, subscribed bool, zone string) string {
	label := tgui.TruncRunes(it.Title, 40) + " @ " + it.AirTime.String()
	if zone != "" {
		label += " " + zone
	}
	if subscribed {
		label = "✅ " + label
	}
	return label
}
