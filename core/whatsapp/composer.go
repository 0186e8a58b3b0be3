package whatsapp

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp/message"
)

// Command describes a registered "/name" command.
type Command struct {
	Handler     HandlerFunc
	Description string
	Aliases     []string
	// Hidden commands are routed but left out of Commands listings.
	Hidden bool
}

// CommandInfo is one entry of a help listing.
type CommandInfo struct {
	Name        string
	Description string
}

type route struct {
	name    string
	match   func(c *Context) bool
	handler HandlerFunc
}

// Composer is an ordered middleware list plus a route table.
// The Bot and every scene embed one.
type Composer struct {
	mu          sync.RWMutex
	middlewares []MiddlewareFunc
	routes      []route
	commands    map[string]Command
	chain       HandlerFunc
}

// NewComposer returns an empty Composer.
func NewComposer() *Composer {
	cm := &Composer{commands: make(map[string]Command)}
	cm.chain = cm.dispatch
	return cm
}

// Use appends middlewares. The first registered middleware is the outermost.
func (cm *Composer) Use(mws ...MiddlewareFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, mw := range mws {
		if mw != nil {
			cm.middlewares = append(cm.middlewares, mw)
		}
	}
	cm.rebuild()
}

// rebuild folds the middleware list around the route dispatcher. Callers hold mu.
func (cm *Composer) rebuild() {
	h := HandlerFunc(cm.dispatch)
	for i := len(cm.middlewares) - 1; i >= 0; i-- {
		h = cm.middlewares[i](h)
	}
	cm.chain = h
}

// Command routes "/name" (and aliases) to h.
func (cm *Composer) Command(name string, h HandlerFunc, aliases ...string) {
	cm.RegisterCommand(name, Command{Handler: h, Aliases: aliases})
}

// RegisterCommand adds a command with metadata. Invalid and duplicate names are skipped with a warning.
func (cm *Composer) RegisterCommand(name string, cmd Command) {
	key := normalizeCommand(name)
	if key == "" || cmd.Handler == nil {
		logger.Warn(context.Background(), logger.CompWire, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.commands == nil {
		cm.commands = make(map[string]Command)
	}
	names := []string{key}
	for _, alias := range cmd.Aliases {
		if a := normalizeCommand(alias); a != "" {
			names = append(names, a)
		}
	}
	for _, n := range names {
		if cm.hasCommand(n) {
			logger.Warn(context.Background(), logger.CompWire, "register.command.duplicate",
				slog.String("name", "/"+n),
			)
			return
		}
	}
	cm.commands[key] = cmd

	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	cm.routes = append(cm.routes, route{
		name: "/" + key,
		match: func(c *Context) bool {
			n, _, ok := c.Command()
			if !ok {
				return false
			}
			_, hit := set[n]
			return hit
		},
		handler: cmd.Handler,
	})
}

func (cm *Composer) hasCommand(name string) bool {
	if _, ok := cm.commands[name]; ok {
		return true
	}
	for _, cmd := range cm.commands {
		for _, alias := range cmd.Aliases {
			if normalizeCommand(alias) == name {
				return true
			}
		}
	}
	return false
}

// Start routes "/start".
func (cm *Composer) Start(h HandlerFunc) {
	cm.RegisterCommand("start", Command{Handler: h, Description: "Start the bot"})
}

// Help routes "/help".
func (cm *Composer) Help(h HandlerFunc) {
	cm.RegisterCommand("help", Command{Handler: h, Description: "Show available commands"})
}

// Hears routes text matching re. Submatches are exposed through Context.Match.
func (cm *Composer) Hears(re *regexp.Regexp, h HandlerFunc) {
	cm.HearsAny(h, re)
}

// HearsAny routes text matching any of res; the first matching pattern
// provides Context.Match.
func (cm *Composer) HearsAny(h HandlerFunc, res ...*regexp.Regexp) {
	patterns := make([]*regexp.Regexp, 0, len(res))
	names := make([]string, 0, len(res))
	for _, re := range res {
		if re != nil {
			patterns = append(patterns, re)
			names = append(names, re.String())
		}
	}
	if len(patterns) == 0 || h == nil {
		return
	}
	cm.addRoute(route{
		name: "hears:" + strings.Join(names, "|"),
		match: func(c *Context) bool {
			if c.Kind() != message.KindMessage || c.msg.Text == nil {
				return false
			}
			for _, re := range patterns {
				if m := re.FindStringSubmatch(*c.msg.Text); m != nil {
					c.match = m
					return true
				}
			}
			return false
		},
		handler: h,
	})
}

// HearsText compiles triggers as case-insensitive patterns and routes them
// like HearsAny. Invalid patterns are skipped with a warning.
func (cm *Composer) HearsText(h HandlerFunc, triggers ...string) {
	res := make([]*regexp.Regexp, 0, len(triggers))
	for _, t := range triggers {
		re, err := regexp.Compile("(?i)" + t)
		if err != nil {
			logger.Warn(context.Background(), logger.CompWire, "register.hears.skip",
				slog.String("pattern", t),
				slog.String("err", err.Error()),
			)
			continue
		}
		res = append(res, re)
	}
	cm.HearsAny(h, res...)
}

// On routes message updates of the given types. No types matches every message.
func (cm *Composer) On(h HandlerFunc, types ...message.Type) {
	if h == nil {
		return
	}
	set := make(map[message.Type]struct{}, len(types))
	names := make([]string, 0, len(types))
	for _, t := range types {
		set[t] = struct{}{}
		names = append(names, string(t))
	}
	name := "on:message"
	if len(names) > 0 {
		name = "on:" + strings.Join(names, ",")
	}
	cm.addRoute(route{
		name: name,
		match: func(c *Context) bool {
			if c.Kind() != message.KindMessage {
				return false
			}
			if len(set) == 0 {
				return true
			}
			_, ok := set[c.msg.Type]
			return ok
		},
		handler: h,
	})
}

// OnKind routes non-message updates such as status or state webhooks.
func (cm *Composer) OnKind(h HandlerFunc, kinds ...message.Kind) {
	if h == nil || len(kinds) == 0 {
		return
	}
	set := make(map[message.Kind]struct{}, len(kinds))
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
		names = append(names, string(k))
	}
	cm.addRoute(route{
		name: "kind:" + strings.Join(names, ","),
		match: func(c *Context) bool {
			_, ok := set[c.Kind()]
			return ok
		},
		handler: h,
	})
}

// Filter lets an update continue only when pred holds.
func (cm *Composer) Filter(pred func(c *Context) bool) {
	if pred == nil {
		return
	}
	cm.Use(func(next HandlerFunc) HandlerFunc {
		return func(c *Context) error {
			if !pred(c) {
				return nil
			}
			return next(c)
		}
	})
}

// Drop stops updates for which pred holds.
func (cm *Composer) Drop(pred func(c *Context) bool) {
	if pred == nil {
		return
	}
	cm.Filter(func(c *Context) bool { return !pred(c) })
}

// Commands lists visible commands sorted by name.
func (cm *Composer) Commands() []CommandInfo {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	list := make([]CommandInfo, 0, len(cm.commands))
	for name, cmd := range cm.commands {
		if cmd.Hidden {
			continue
		}
		list = append(list, CommandInfo{Name: "/" + name, Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Handler returns the folded chain. Unmatched updates end the chain.
func (cm *Composer) Handler() HandlerFunc {
	return func(c *Context) error { return cm.Run(c, nil) }
}

// Run passes c through the chain. When no route matches, next is invoked
// so an outer pipeline can continue.
func (cm *Composer) Run(c *Context, next HandlerFunc) error {
	cm.mu.RLock()
	chain := cm.chain
	cm.mu.RUnlock()
	if chain == nil {
		chain = cm.dispatch
	}

	prev := c.fallback
	c.fallback = func(x *Context) error {
		x.fallback = prev
		if next == nil {
			return nil
		}
		return next(x)
	}
	defer func() { c.fallback = prev }()
	return chain(c)
}

func (cm *Composer) addRoute(r route) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.routes = append(cm.routes, r)
}

func (cm *Composer) dispatch(c *Context) error {
	cm.mu.RLock()
	routes := cm.routes
	cm.mu.RUnlock()

	for _, r := range routes {
		if r.match(c) {
			return handleWithSummary(c, r.name, time.Now(), r.handler)
		}
	}
	if c.fallback != nil {
		return c.fallback(c)
	}
	return nil
}

func normalizeCommand(name string) string {
	name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "/")))
	if name == "" || strings.ContainsAny(name, " \t\n/") {
		return ""
	}
	return name
}
