package provider

import (
	"context"
	"time"
)

// WithFragmentTimeout wraps a chunk channel with a bounded wait for the
// first and for each subsequent chunk. If the upstream goes quiet for
// longer than d, the returned channel delivers a single terminal TIMEOUT
// failure and closes.
//
// There is deliberately no overall wall-clock cap — a long reply is fine as
// long as fragments keep arriving. The caller is expected to cancel ctx
// once it sees the terminal chunk, which unblocks the wrapped adapter.
//
// A non-positive d disables the bound and returns in unchanged.
func WithFragmentTimeout(ctx context.Context, in <-chan Chunk, d time.Duration) <-chan Chunk {
	if d <= 0 {
		return in
	}

	out := make(chan Chunk)

	go func() {
		defer close(out)

		timer := time.NewTimer(d)
		defer timer.Stop()

		for {
			select {
			case chunk, ok := <-in:
				if !ok {
					return
				}

				// Re-arm the per-fragment deadline. Stop+drain before
				// Reset, per the time.Timer contract.
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(d)

				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}

			case <-timer.C:
				select {
				case out <- Chunk{Err: NewFailure(CodeTimeout, context.DeadlineExceeded)}:
				case <-ctx.Done():
				}
				return

			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
