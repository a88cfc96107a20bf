// Package command is the small named-command framework behind every
// non-entry operation of a session.
package command

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// ErrUnknown is the cause of the failure Result for an unregistered name.
var ErrUnknown = errors.New("unknown command")

// Result is the uniform outcome of a command.
type Result struct {
	OK       bool
	Message  string
	Lines    []string
	Warnings []string
	Err      error
}

func Success(msg string, lines ...string) Result {
	return Result{OK: true, Message: msg, Lines: lines}
}

func Failure(err error) Result {
	return Result{Message: err.Error(), Err: err}
}

type Command interface {
	Name() string
	Aliases() []string
	Summary() string
	Execute(ctx context.Context, args string) (Result, error)
}

// Validator is implemented by commands that check their arguments before
// running. A validation error means Execute is never called.
type Validator interface {
	Validate(args string) error
}

// Func builds a Command out of plain functions.
type Func struct {
	Use   string
	Alias []string
	Help  string
	Check func(args string) error
	Run   func(ctx context.Context, args string) (Result, error)
}

func (f *Func) Name() string      { return f.Use }
func (f *Func) Aliases() []string { return f.Alias }
func (f *Func) Summary() string   { return f.Help }

func (f *Func) Validate(args string) error {
	if f.Check == nil {
		return nil
	}
	return f.Check(args)
}

func (f *Func) Execute(ctx context.Context, args string) (Result, error) {
	if f.Run == nil {
		return Success(""), nil
	}
	return f.Run(ctx, args)
}

type Registry struct {
	Logger *log.Logger

	commands map[string]Command
	// names maps every name and alias to the primary name.
	names map[string]string
}

func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{
		Logger:   logger,
		commands: make(map[string]Command),
		names:    make(map[string]string),
	}
}

// Register adds c. Names and aliases are case-insensitive and must not collide
// with anything already registered.
func (r *Registry) Register(c Command) error {
	name := strings.ToLower(strings.TrimSpace(c.Name()))
	if name == "" {
		return errors.New("command has no name")
	}
	keys := []string{name}
	for _, a := range c.Aliases() {
		keys = append(keys, strings.ToLower(strings.TrimSpace(a)))
	}
	for _, k := range keys {
		if k == "" {
			return errors.Errorf("command %s has an empty alias", name)
		}
		if owner, ok := r.names[k]; ok {
			return errors.Errorf("%q already registered by %s", k, owner)
		}
	}
	r.commands[name] = c
	for _, k := range keys {
		r.names[k] = name
	}
	return nil
}

// MustRegister panics if c cannot be registered.
func (r *Registry) MustRegister(cs ...Command) {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Lookup finds a command by name or alias.
func (r *Registry) Lookup(name string) (Command, bool) {
	primary, ok := r.names[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return r.commands[primary], true
}

// Has reports whether name is a registered name or alias.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the primary command names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.commands))
	for n := range r.commands {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Execute runs the named command. Every failure, including a panic inside the
// command or its validator, comes back as a Result with OK unset.
func (r *Registry) Execute(ctx context.Context, name, args string) (res Result) {
	c, ok := r.Lookup(name)
	if !ok {
		return Failure(errors.Wrapf(ErrUnknown, "%s", name))
	}
	defer func() {
		if p := recover(); p != nil {
			if r.Logger != nil {
				r.Logger.Error("command panicked", "command", c.Name(), "panic", p, "stack", string(debug.Stack()))
			}
			res = Failure(errors.Errorf("%s failed: %v", c.Name(), p))
		}
	}()
	if v, ok := c.(Validator); ok {
		if err := v.Validate(args); err != nil {
			return Failure(errors.Wrapf(err, "%s", c.Name()))
		}
	}
	out, err := c.Execute(ctx, args)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Debug("command failed", "command", c.Name(), "err", err)
		}
		f := Failure(err)
		f.Warnings = out.Warnings
		return f
	}
	out.OK = true
	return out
}

// Usage renders one help line per command.
func (r *Registry) Usage() []string {
	var out []string
	for _, n := range r.Names() {
		c := r.commands[n]
		label := n
		if al := c.Aliases(); len(al) > 0 {
			label += " (" + strings.Join(al, ", ") + ")"
		}
		out = append(out, fmt.Sprintf("%-22s %s", label, c.Summary()))
	}
	return out
}
