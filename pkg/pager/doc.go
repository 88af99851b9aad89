// Package pager implements an incrementally loaded, paginated list engine.
//
// The engine consumes two trigger streams, refresh and load-more, and turns
// them into page fetches against a PageFetcher. Results are accumulated into
// a single list and republished together with the network status:
//
//	refresh := make(chan struct{})
//	loadMore := make(chan struct{})
//
//	engine := pager.New(fetcher, pager.Inputs{Refresh: refresh, LoadMore: loadMore}, pager.DefaultConfig())
//	go engine.Run(ctx)
//
//	go func() {
//		for st := range engine.Status().Subscribe(ctx) {
//			// idle, requesting, failed
//		}
//	}()
//
//	refresh <- struct{}{}
//	for items := range engine.Items().Subscribe(ctx) {
//		// render items, send on loadMore when the last row shows
//	}
//
// The engine:
//   - Requests the first page on refresh and replaces the list
//   - Requests the cursor's page on load-more and appends to the list
//   - Ignores load-more once the last page was reached
//   - Keeps at most one fetch in flight, dropping triggers meanwhile
//   - Reports failures as a transient Failed status followed by Idle
//
// Fetch failures never end the outputs and never change the list or cursor.
package pager
