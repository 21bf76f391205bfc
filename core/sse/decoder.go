package sse

import "fmt"

// Decoder reassembles records from a byte stream delivered in arbitrary
// chunks. Bytes of an incomplete record are kept and prepended to the next
// chunk.
type Decoder struct {
	pending    []byte
	maxPending int
	skipped    int
}

func NewDecoder() *Decoder {
	return &Decoder{maxPending: DefaultMaxPending}
}

// WithMaxPending overrides the pending limit. Non-positive values restore
// the default.
func (d *Decoder) WithMaxPending(limit int) *Decoder {
	if limit <= 0 {
		limit = DefaultMaxPending
	}
	d.maxPending = limit
	return d
}

// Feed appends chunk to the pending bytes and returns every record completed
// by it. Malformed records are skipped and logged. ErrFrameTooLarge is fatal:
// the decoder must not be fed again.
func (d *Decoder) Feed(chunk []byte) ([]Record, error) {
	d.pending = append(d.pending, chunk...)

	records, rest, skipped := Split(d.pending)
	if skipped > 0 {
		d.skipped += skipped
		logger.Warn("skipped malformed records", "count", skipped)
	}

	// Compact so the retained remainder does not pin the whole history.
	d.pending = append(d.pending[:0], rest...)

	if len(d.pending) > d.maxPending {
		pending := len(d.pending)
		d.pending = nil
		return records, fmt.Errorf("%w: %d bytes pending", ErrFrameTooLarge, pending)
	}
	return records, nil
}

// Flush ends the stream. A trailing record that is complete except for its
// final empty line is returned; anything else left over is discarded and
// reported as truncated.
func (d *Decoder) Flush() (records []Record, truncated bool) {
	pending := d.pending
	d.pending = nil
	if len(pending) == 0 {
		return nil, false
	}
	if pending[len(pending)-1] != '\n' {
		logger.Debug("discarding partial trailing record", "bytes", len(pending))
		return nil, true
	}

	records, rest, _ := Split(append(pending, '\n'))
	return records, len(rest) > 0
}

// Pending reports the number of buffered bytes that do not yet form a
// complete record.
func (d *Decoder) Pending() int { return len(d.pending) }

// Skipped reports the number of malformed records dropped so far.
func (d *Decoder) Skipped() int { return d.skipped }
