package binder

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/parcel"
	"github.com/wippyai/binderkit/value"
)

// obituary is one Link registration. The target is held weakly.
type obituary struct {
	target   *atom.WeakRef[IBinder]
	bindings value.Value
	flags    Flags
}

func (o *obituary) matches(target IBinder, bindings value.Value, flags Flags) bool {
	return o.target.Peek().RefAtom() == target.RefAtom() &&
		o.flags == flags &&
		value.Equal(o.bindings, bindings)
}

// obituaries is the death notification list of one binder. After fire it
// refuses new registrations.
type obituaries struct {
	mu   sync.Mutex
	list []*obituary
	dead bool
}

const linkOwner = "link"

func (l *obituaries) link(target IBinder, bindings value.Value, flags Flags) error {
	if target == nil {
		return errors.InvalidInput(errors.PhaseLink, "nil link target")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dead {
		return errors.Unreachable(errors.PhaseLink, "object is dead")
	}
	l.list = append(l.list, &obituary{
		target:   atom.NewWeak(target, linkOwner),
		bindings: bindings.Clone(),
		flags:    flags,
	})
	return nil
}

func (l *obituaries) unlink(target IBinder, bindings value.Value, flags Flags) {
	if target == nil {
		return
	}
	l.mu.Lock()
	var removed *obituary
	for i, o := range l.list {
		if o.matches(target, bindings, flags) {
			removed = o
			l.list = append(l.list[:i], l.list[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
	if removed != nil {
		removed.target.Release()
		removed.bindings.Release()
	}
}

func (l *obituaries) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list)
}

// take marks the list dead and returns the registrations, at most once.
func (l *obituaries) take() []*obituary {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dead {
		return nil
	}
	l.dead = true
	list := l.list
	l.list = nil
	return list
}

// discard drops every registration without delivering it.
func (l *obituaries) discard() {
	for _, o := range l.take() {
		o.target.Release()
		o.bindings.Release()
	}
}

// fire delivers every registration once as a one-way CodeObituary
// transaction and returns how many were delivered.
func (l *obituaries) fire(log *zap.Logger) int {
	delivered := 0
	for _, o := range l.take() {
		if deliverObituary(o, log) {
			delivered++
		}
		o.target.Release()
		o.bindings.Release()
	}
	return delivered
}

func deliverObituary(o *obituary, log *zap.Logger) bool {
	ref, ok := o.target.Promote(linkOwner)
	if !ok {
		log.Debug("obituary target already gone")
		return false
	}
	defer ref.Release()

	target := ref.Get()
	data := parcel.New(flattenerFor(target))
	defer data.Free()
	if err := data.WriteValue(o.bindings); err != nil {
		log.Warn("obituary bindings not writable", zap.Error(err))
		return false
	}
	if err := target.Transact(context.Background(), CodeObituary, data, nil, o.flags|FlagOneWay); err != nil {
		log.Debug("obituary not delivered", zap.Error(err))
		return false
	}
	return true
}
