// Package redirect bridges asynchronous inbound redirect deliveries into a
// single awaited value.
//
// The authorize round-trip leaves the process: the browser eventually comes
// back with a redirect URI. Await turns that callback into an ordinary
// blocking call with cancellation, settling exactly once on the first event
// and guaranteeing unsubscription from the event source on every exit path.
package redirect

import (
	"context"
	"net/url"
	"sync"
)

// Event is an inbound redirect URI delivered by the host environment.
type Event struct {
	URL *url.URL
}

// Source delivers redirect events to subscribed handlers. Subscribe returns
// an unsubscribe function that must be safe to call multiple times.
type Source interface {
	Subscribe(handler func(Event)) (unsubscribe func())
}

// Adapter inspects the first event and settles the wait, calling exactly
// one of resolve or reject.
type Adapter[T any] func(event Event, resolve func(T), reject func(error))

// Await subscribes to src and blocks until adapt settles on the first
// event received, or ctx is done, whichever comes first. The subscription
// is released before Await returns, regardless of outcome.
func Await[T any](ctx context.Context, src Source, adapt Adapter[T]) (T, error) {
	type outcome struct {
		value T
		err   error
	}

	// Buffered so a late-settling adapter never blocks on a departed waiter
	settled := make(chan outcome, 1)
	var once sync.Once
	settle := func(o outcome) {
		once.Do(func() { settled <- o })
	}

	unsubscribe := src.Subscribe(func(event Event) {
		adapt(event,
			func(value T) { settle(outcome{value: value}) },
			func(err error) { settle(outcome{err: err}) },
		)
	})
	defer unsubscribe()

	select {
	case o := <-settled:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
