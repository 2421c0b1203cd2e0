// SPDX-License-Identifier: GPL-3.0-or-later

// Package closers tracks long-lived resources and releases them in
// reverse acquisition order on shutdown.
package closers

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
)

// Pool collects named resources to release together. The zero value
// is ready to use. Pool is safe for concurrent use.
type Pool struct {
	// Logger optionally logs each release; nil logs nothing.
	Logger *slog.Logger

	mu      sync.Mutex
	entries []entry
}

type entry struct {
	name   string
	closer io.Closer
}

// Add registers a closer under a name used in shutdown logs.
func (p *Pool) Add(name string, closer io.Closer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry{name: name, closer: closer})
}

// AddFunc registers a bare cleanup function.
func (p *Pool) AddFunc(name string, fn func() error) {
	p.Add(name, closerFunc(fn))
}

// closerFunc adapts a function to [io.Closer].
type closerFunc func() error

// Close implements [io.Closer].
func (fn closerFunc) Close() error {
	return fn()
}

// Close releases every registered resource in reverse order, so
// dependents go before their dependencies, and returns the joined
// errors. The pool empties itself: closing twice releases nothing
// the second time.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, e := range slices.Backward(p.entries) {
		err := e.closer.Close()
		if err != nil {
			errs = append(errs, err)
		}
		if p.Logger != nil {
			p.Logger.Debug(
				"closed",
				slog.String("name", e.name),
				slog.Any("err", err),
			)
		}
	}
	p.entries = nil
	return errors.Join(errs...)
}
