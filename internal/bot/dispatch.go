package bot

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

	rtsup "github.com/ryanwhyr/uniqlo-sale-notifier/internal/runtime/supervisor"
	kit "github.com/ryanwhyr/uniqlo-sale-notifier/internal/transport"
	logx "github.com/ryanwhyr/uniqlo-sale-notifier/pkg/logx"
	"github.com/ryanwhyr/uniqlo-sale-notifier/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string // e.g. "add"
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackAccess controls who can trigger an inline-button callback.
type CallbackAccess int

const (
	CallbackAccessEveryone CallbackAccess = iota
	CallbackAccessOwnerOnly
)

type CallbackRoute struct {
	Scope   string
	Action  string
	Access  CallbackAccess
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	Payload string // callback payload (raw string)
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
	Owners  []int64
}

// Dispatcher routes inbound updates to registered commands/callbacks.
type Dispatcher struct {
	mu       sync.RWMutex
	commands map[string]*Command // canonical name + aliases -> command
	ordered  []*Command          // registration order, canonical only

	cbMu      sync.RWMutex
	callbacks map[string]map[string]CallbackRoute // scope -> action -> route

	owners []int64

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func NewDispatcher(log logx.Logger, adapter kit.Adapter, owners []int64) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		commands:  map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		log:       log,
		adapter:   adapter,
		owners:    append([]int64(nil), owners...),
		jobs:      make(chan func(), 256),
	}
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (d *Dispatcher) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	d.mu.Lock()
	d.owners = cp
	d.mu.Unlock()
}

func (d *Dispatcher) ownersSnapshot() []int64 {
	d.mu.RLock()
	cp := append([]int64(nil), d.owners...)
	d.mu.RUnlock()
	return cp
}

func (d *Dispatcher) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	// always inject help
	cmds = append(cmds, Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "tampilkan bantuan",
		Usage:       "/help [perintah]",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			text := d.helpText(req.Args)
			_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
			return err
		},
	})

	byName := map[string]*Command{}
	ordered := make([]*Command, 0, len(cmds))
	for i := range cmds {
		c := cmds[i]
		name := strings.TrimSpace(strings.ToLower(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		byName[name] = &cc
		ordered = append(ordered, &cc)
		for _, a := range cc.Aliases {
			a = strings.TrimSpace(strings.ToLower(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := byName[a]; !exists {
				byName[a] = &cc
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		s := strings.TrimSpace(r.Scope)
		a := strings.TrimSpace(r.Action)
		if s == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[s] == nil {
			cb[s] = map[string]CallbackRoute{}
		}
		cb[s][a] = r
	}

	d.mu.Lock()
	d.commands = byName
	d.ordered = ordered
	d.mu.Unlock()

	d.cbMu.Lock()
	d.callbacks = cb
	d.cbMu.Unlock()

	// Best-effort Telegram /menu autocomplete update (non-blocking).
	if up, ok := d.adapter.(kit.CommandMenuUpdater); ok {
		menu := d.menuCommands(ordered)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = up.UpdateMenuCommands(ctx, menu)
		}()
	}
}

func (d *Dispatcher) menuCommands(ordered []*Command) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(ordered))
	for _, c := range ordered {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" {
			continue
		}
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = name
		}
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	if len(out) > 100 {
		out = out[:100]
	}
	return out
}

// Supervisor returns the dispatcher's internal supervisor (nil if not running).
func (d *Dispatcher) Supervisor() *rtsup.Supervisor {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if !d.running {
		return nil
	}
	return d.sup
}

func (d *Dispatcher) setSupervisor(sup *rtsup.Supervisor, running bool) {
	d.runMu.Lock()
	d.sup = sup
	d.running = running
	d.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (d *Dispatcher) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case d.jobs <- fn:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(d.log.With(logx.String("comp", "bot.dispatch"))),
		rtsup.WithCancelOnError(false),
	)
	d.setSupervisor(sup, true)

	d.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(d.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			// Mark as not running before closing so enqueue can degrade gracefully.
			d.setSupervisor(sup, false)
			close(d.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		name := "command.worker." + strconv.Itoa(idx)
		sup.GoRestart(name, func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-d.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					// Middleware already recovers; keep workers alive regardless.
					func() {
						defer func() {
							if r := recover(); r != nil {
								d.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		d.setSupervisor(nil, false)
		d.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				d.log.Info("updates channel closed")
				return nil
			}
			d.routeUpdate(ctx, up)
		}
	}
}

func (d *Dispatcher) routeUpdate(root context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		d.routeMessage(root, up)
	case kit.UpdateCallback:
		d.routeCallback(root, up)
	}
}

func (d *Dispatcher) routeMessage(root context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	args := parts[1:]

	d.mu.RLock()
	cmdp := d.commands[word]
	d.mu.RUnlock()
	if cmdp == nil {
		_, _ = d.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, "Perintah tidak dikenal. Coba /help", nil)
		return
	}
	cmd := *cmdp

	owners := d.ownersSnapshot()
	if cmd.Access == AccessOwnerOnly && !isOwner(msg.FromID, owners) {
		_, _ = d.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, "unauthorized", nil)
		return
	}

	rid := newReqID()
	reqLog := d.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", cmd.Name),
	)

	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Adapter: d.adapter,
		Logger:  reqLog,
		Owners:  owners,
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(d.log),
		MWRequestLog(d.log),
		MWTimeout(cmd.Timeout),
	)

	if !d.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = d.adapter.SendText(root, req.Chat, "Sedang sibuk, coba lagi sebentar.", nil)
	}
}

func (d *Dispatcher) routeCallback(root context.Context, up kit.Update) {
	if up.Callback == nil {
		return
	}
	cb := up.Callback
	data := strings.TrimSpace(cb.Data)
	if len(data) > tgui.MaxCallbackDataLen {
		return
	}
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 {
		return
	}
	scope, action := parts[0], parts[1]
	payload := ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	d.cbMu.RLock()
	route, ok := d.callbacks[scope][action]
	d.cbMu.RUnlock()
	if !ok {
		return
	}

	owners := d.ownersSnapshot()
	if route.Access == CallbackAccessOwnerOnly && !isOwner(cb.FromID, owners) {
		_ = d.adapter.AnswerCallback(root, cb.ID, "forbidden")
		return
	}

	rid := newReqID()
	reqLog := d.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", cb.ChatID),
		logx.Int64("from_id", cb.FromID),
		logx.String("cmd", "cb:"+scope+":"+action),
	)
	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:  cb.FromID,
		Command: "cb:" + scope + ":" + action,
		Payload: payload,
		ReqID:   rid,
		Adapter: d.adapter,
		Logger:  reqLog,
		Owners:  owners,
	}

	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := Chain(
		h,
		MWPanicRecover(d.log),
		MWRequestLog(d.log),
		MWTimeout(route.Timeout),
	)

	if !d.tryEnqueue(func() {
		_ = final(root, req)
		// best-effort to stop the "loading" UI
		_ = d.adapter.AnswerCallback(root, cb.ID, "")
	}) {
		_ = d.adapter.AnswerCallback(root, cb.ID, "busy")
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}

func newReqID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// sanitizeTelegramCommand restricts a name to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
		case r == '-' || r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}
