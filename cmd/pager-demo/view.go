package main

import (
	"context"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/Sternrassler/eve-esi-pager/pkg/pager"
	"github.com/rs/zerolog"
)

// listView stands in for a scrolling list UI. It refreshes once and then
// scrolls to the end of every new snapshot, which asks for more. The list
// is complete once a load-more goes unanswered for the settle period.
type listView struct {
	engine      *pager.Engine
	refresh     chan<- struct{}
	loadMore    chan<- struct{}
	settle      time.Duration
	maxFailures int
	out         io.Writer
	logger      zerolog.Logger
}

// run returns the number of items shown when the list is complete, when
// too many fetches failed in a row or when ctx is done.
func (v *listView) run(ctx context.Context) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := forward(ctx, v.engine.Items().Subscribe(ctx))
	status := forward(ctx, v.engine.Status().Subscribe(ctx))

	// initial empty list and Idle
	shown := len(<-items)
	<-status

	if err := send(ctx, v.refresh); err != nil {
		return shown, err
	}

	var (
		failures int
		settled  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return shown, ctx.Err()

		case list, ok := <-items:
			if !ok {
				return shown, nil
			}
			v.render(list, shown)
			shown = len(list)
			failures = 0

		case st, ok := <-status:
			if !ok {
				return shown, nil
			}
			fmt.Fprintf(v.out, "-- %s\n", st)

			switch st.Phase {
			case pager.PhaseRequesting:
				settled = nil
			case pager.PhaseFailed:
				failures++
				if failures > v.maxFailures {
					return shown, fmt.Errorf("giving up after %d failed fetches: %w", failures, st.Err)
				}
				v.logger.Warn().Err(st.Err).Int("failures", failures).Msg("Fetch failed, asking again")
			case pager.PhaseIdle:
				if err := send(ctx, v.loadMore); err != nil {
					return shown, err
				}
				settled = time.After(v.settle)
			}

		case <-settled:
			v.logger.Debug().Int("items", shown).Msg("Load-more unanswered, list complete")
			return shown, nil
		}
	}
}

// render prints the rows a snapshot adds to what is on screen. A refresh
// that replaces the list redraws it.
func (v *listView) render(list []pager.Item, shown int) {
	start := shown
	if len(list) < shown || shown == 0 {
		start = 0
		if len(list) > 0 {
			fmt.Fprintln(v.out, "== list")
		}
	}
	for i := start; i < len(list); i++ {
		fmt.Fprintf(v.out, "%4d  %s\n", i, list[i].Name)
	}
}

// forward drains seq into a channel that is closed when seq ends.
func forward[T any](ctx context.Context, seq iter.Seq[T]) <-chan T {
	ch := make(chan T, 16)
	go func() {
		defer close(ch)
		for value := range seq {
			select {
			case ch <- value:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func send(ctx context.Context, trigger chan<- struct{}) error {
	select {
	case trigger <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
