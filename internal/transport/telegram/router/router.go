// Package router dispatches Telegram updates to command and inline-button
// handlers on a small supervised worker pool.
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"airwatch/internal/runtime/supervisor"
	"airwatch/internal/transport"
	"airwatch/pkg/logx"
	"airwatch/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute matches callback data "group:action[:payload]".
type CallbackRoute struct {
	Group   string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update    transport.Update
	Chat      transport.ChatTarget
	FromID    int64
	Username  string
	FirstName string
	Private   bool
	Command   string
	Args      []string
	Payload   string
	MessageID int
	ReqID     string
	Logger    logx.Logger

	// Answer is shown as the callback toast once the handler returns.
	Answer string
}

func (r *Request) logger(fallback logx.Logger) logx.Logger {
	if r != nil && !r.Logger.IsZero() {
		return r.Logger
	}
	return fallback
}

type Config struct {
	Workers   int
	QueueSize int
}

type Router struct {
	cfg     Config
	log     logx.Logger
	adapter transport.Adapter

	mu        sync.RWMutex
	cmds      map[string]*Command
	alias     map[string]*Command
	callbacks map[string]map[string]CallbackRoute
	owners    []int64

	runMu sync.Mutex
	sup   *supervisor.Supervisor
	jobs  chan func()
}

func New(cfg Config, adapter transport.Adapter, owners []int64, log logx.Logger) *Router {
	if cfg.Workers <= 0 {
		cfg.Workers = max(2, runtime.NumCPU())
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfg:       cfg,
		log:       log,
		adapter:   adapter,
		cmds:      map[string]*Command{},
		alias:     map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		owners:    append([]int64(nil), owners...),
		jobs:      make(chan func(), cfg.QueueSize),
	}
}

// SetOwners replaces the owner list; safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.owners {
		if o == id {
			return true
		}
	}
	return false
}

// Register replaces the command and callback tables. A help command is always added.
func (r *Router) Register(cmds []Command, cbs []CallbackRoute) {
	cmds = append(cmds, Command{
		Name:        "help",
		Description: "List commands",
		Handle: func(ctx context.Context, req *Request) error {
			_, err := r.adapter.SendText(ctx, req.Chat, r.helpText(r.isOwner(req.FromID)), &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
			return err
		},
	})

	table := map[string]*Command{}
	alias := map[string]*Command{}
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Name), "/"))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		table[name] = &cc
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" && !strings.Contains(a, " ") {
				alias[a] = &cc
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, rt := range cbs {
		g, a := strings.TrimSpace(rt.Group), strings.TrimSpace(rt.Action)
		if g == "" || a == "" || rt.Handle == nil {
			continue
		}
		if cb[g] == nil {
			cb[g] = map[string]CallbackRoute{}
		}
		cb[g][a] = rt
	}

	r.mu.Lock()
	r.cmds, r.alias, r.callbacks = table, alias, cb
	r.mu.Unlock()
}

// Menu lists the public commands for the Telegram command menu.
func (r *Router) Menu() []transport.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]transport.BotCommand, 0, len(r.cmds))
	for _, c := range r.cmds {
		if c.Access == AccessEveryone {
			out = append(out, transport.BotCommand{Command: c.Name, Description: c.Description})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Supervisor returns the worker supervisor, nil when the loop is not running.
func (r *Router) Supervisor() *supervisor.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.sup
}

// DispatchLoop routes updates until ctx ends or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		supervisor.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup = sup
	r.runMu.Unlock()

	r.log.Info("command dispatcher started", logx.Int("workers", r.cfg.Workers), logx.Int("job_queue_cap", cap(r.jobs)))
	for i := 0; i < r.cfg.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					r.runJob(idx, job)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.runMu.Lock()
		r.sup = nil
		r.runMu.Unlock()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (r *Router) tryEnqueue(fn func()) bool {
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

func (r *Router) route(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if req, h, ok := r.matchMessage(up); ok {
			if !r.tryEnqueue(func() { _ = h(ctx, req) }) {
				_, _ = r.adapter.SendText(ctx, req.Chat, "busy, try again", nil)
			}
		}
	case transport.UpdateCallback:
		if req, h, ok := r.matchCallback(ctx, up); ok {
			if !r.tryEnqueue(func() {
				_ = h(ctx, req)
				_ = r.adapter.AnswerCallback(ctx, up.Callback.ID, req.Answer)
			}) {
				_ = r.adapter.AnswerCallback(ctx, up.Callback.ID, "busy")
			}
		}
	}
}

func (r *Router) matchMessage(up transport.Update) (*Request, HandlerFunc, bool) {
	msg := up.Message
	if msg == nil {
		return nil, nil, false
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil, nil, false
	}
	fields := strings.Fields(text)
	word := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}

	r.mu.RLock()
	cmd := r.cmds[word]
	if cmd == nil {
		cmd = r.alias[word]
	}
	r.mu.RUnlock()

	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if cmd == nil {
		if msg.Private {
			return r.replyOnly(up, chat, msg.FromID, "unknown command, try /help")
		}
		return nil, nil, false
	}
	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.FromID) {
		return r.replyOnly(up, chat, msg.FromID, "unauthorized")
	}

	req := r.newRequest(up, chat, msg.FromID, cmd.Name)
	req.Username, req.FirstName, req.Private = msg.FromUsername, msg.FromFirstName, msg.Private
	req.Args = fields[1:]
	req.MessageID = msg.ID
	return req, r.chain(cmd.Handle, cmd.Timeout), true
}

func (r *Router) matchCallback(ctx context.Context, up transport.Update) (*Request, HandlerFunc, bool) {
	cb := up.Callback
	if cb == nil {
		return nil, nil, false
	}
	group, action, payload, ok := tgui.Parse(cb.Data)
	if !ok {
		return nil, nil, false
	}
	r.mu.RLock()
	route, ok := r.callbacks[group][action]
	r.mu.RUnlock()
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return nil, nil, false
	}
	if route.Access == AccessOwnerOnly && !r.isOwner(cb.FromID) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return nil, nil, false
	}

	chat := transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	req := r.newRequest(up, chat, cb.FromID, "cb:"+group+":"+action)
	req.Username, req.FirstName = cb.FromUsername, cb.FromFirstName
	req.Private = cb.ChatID == cb.FromID
	req.Payload = payload
	req.MessageID = cb.MessageID
	h := func(ctx context.Context, req *Request) error { return route.Handle(ctx, req, req.Payload) }
	return req, r.chain(h, route.Timeout), true
}

func (r *Router) replyOnly(up transport.Update, chat transport.ChatTarget, from int64, text string) (*Request, HandlerFunc, bool) {
	req := r.newRequest(up, chat, from, "reply")
	return req, func(ctx context.Context, req *Request) error {
		_, err := r.adapter.SendText(ctx, req.Chat, text, nil)
		return err
	}, true
}

func (r *Router) newRequest(up transport.Update, chat transport.ChatTarget, from int64, cmd string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: cmd,
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", cmd),
		),
	}
}

func (r *Router) chain(h HandlerFunc, timeout time.Duration) HandlerFunc {
	return Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
}

func newReqID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
