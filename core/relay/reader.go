package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/PaulBappoo/Deeperseek/core/sse"
)

const readBufferSize = 4096

// Events reads a relay stream and yields its events in order. Anomalous
// records are logged and skipped. The sequence ends after the terminator, at
// EOF, when ctx is done, or with a non-nil error for framing and read
// failures.
func Events(ctx context.Context, r io.Reader) func(yield func(Event, error) bool) {
	return func(yield func(Event, error) bool) {
		decoder := sse.NewDecoder()
		buf := make([]byte, readBufferSize)

		emit := func(records []sse.Record) (keepGoing bool) {
			for _, rec := range records {
				event, err := Decode(rec)
				if err != nil {
					logger.Warn("skipping relay record", "event", rec.Event, "error", err)
					continue
				}
				if !yield(event, nil) {
					return false
				}
				if event.IsTerminator() {
					return false
				}
			}
			return true
		}

		for {
			if ctx.Err() != nil {
				return
			}

			n, readErr := r.Read(buf)
			if n > 0 {
				records, err := decoder.Feed(buf[:n])
				if !emit(records) {
					return
				}
				if err != nil {
					yield(Event{}, fmt.Errorf("relay stream framing failed: %w", err))
					return
				}
			}

			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					records, _ := decoder.Flush()
					emit(records)
					return
				}
				if ctx.Err() != nil {
					return
				}
				yield(Event{}, fmt.Errorf("error reading relay stream: %w", readErr))
				return
			}
		}
	}
}
