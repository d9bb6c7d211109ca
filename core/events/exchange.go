// Package events broadcasts appended commits to observers — zosctl events,
// the metrics collector — without ever being on Axiom's mutation critical
// path. It adapts the teacher's core/events / pkg/shim.Publisher pattern
// onto github.com/docker/go-events: a Broadcaster fans out to per-
// subscriber Channel sinks, and a slow or dead subscriber cannot stall a
// Write because Broadcaster.Write returns once every sink has accepted (or
// errored) the event — subscribers that error out are meant to be removed,
// never to block publication indefinitely.
package events

import (
	"context"

	goevents "github.com/docker/go-events"

	"github.com/zeroos/zeroos/core/commit"
)

// CommitEvent is the value broadcast for every appended CommitLog entry.
type CommitEvent struct {
	Entry commit.Entry
}

// Exchange is the commit broadcaster. The zero value is not usable; use
// NewExchange.
type Exchange struct {
	broadcaster *goevents.Broadcaster
}

// NewExchange constructs an empty Exchange.
func NewExchange() *Exchange {
	return &Exchange{broadcaster: goevents.NewBroadcaster()}
}

// Publish broadcasts one commit entry to every current subscriber. It never
// returns an error to the caller: a broadcast failing to reach a given
// subscriber is that subscriber's problem, not Axiom's — see package doc.
func (e *Exchange) Publish(ctx context.Context, entry commit.Entry) {
	_ = e.broadcaster.Write(CommitEvent{Entry: entry})
}

// Subscription is a live feed of commit entries plus the means to stop
// receiving them.
type Subscription struct {
	ch   *goevents.Channel
	exch *Exchange
}

// Subscribe registers a new observer and returns a Subscription whose C()
// channel receives every commit published from this point on.
func (e *Exchange) Subscribe() *Subscription {
	ch := goevents.NewChannel(0)
	e.broadcaster.Add(ch)
	return &Subscription{ch: ch, exch: e}
}

// C returns the channel of observed commit entries.
func (s *Subscription) C() <-chan commit.Entry {
	out := make(chan commit.Entry)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-s.ch.C:
				if !ok {
					return
				}
				if ce, ok := ev.(CommitEvent); ok {
					out <- ce.Entry
				}
			case <-s.ch.Done():
				return
			}
		}
	}()
	return out
}

// Close unsubscribes.
func (s *Subscription) Close() error {
	return s.exch.broadcaster.Remove(s.ch)
}

// Close shuts the exchange down, closing every subscriber's channel.
func (e *Exchange) Close() error {
	return e.broadcaster.Close()
}
