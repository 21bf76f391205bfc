// Package sse implements the line-delimited record framing shared by the
// upstream completion streams and the downstream relay.
//
// A record is a group of "field: value" lines terminated by an empty line:
//
//	event: source_end
//	data: {"source":"critic","status":"ok"}
//
// Multiple data lines are joined with a newline when decoded, so a payload
// containing newlines is encoded as several data lines and never breaks the
// record boundary. Lines starting with a colon are comments and are used as
// keep-alives.
package sse

import (
	"bytes"
	"errors"
)

const (
	fieldEvent = "event"
	fieldData  = "data"
	fieldID    = "id"
	fieldRetry = "retry"

	// DefaultMaxPending bounds how many bytes may be buffered while waiting for
	// a record boundary before the stream is considered unframeable.
	DefaultMaxPending = 1 << 20
)

// ErrFrameTooLarge is returned when no record boundary is found within the
// decoder's pending limit.
var ErrFrameTooLarge = errors.New("sse: no record boundary within buffered data")

type Record struct {
	// Event is the optional event name, empty for plain data records.
	Event string
	// Data is the payload with multiple data lines joined by '\n'.
	Data []byte
}

// Encode returns the wire form of a single record including its terminating
// empty line.
func Encode(rec Record) []byte {
	return AppendRecord(nil, rec)
}

func AppendRecord(dst []byte, rec Record) []byte {
	if rec.Event != "" {
		dst = append(dst, fieldEvent+": "...)
		dst = append(dst, rec.Event...)
		dst = append(dst, '\n')
	}
	if len(rec.Data) == 0 {
		dst = append(dst, fieldData+":\n"...)
		return append(dst, '\n')
	}
	for _, line := range bytes.Split(rec.Data, []byte("\n")) {
		dst = append(dst, fieldData+": "...)
		dst = append(dst, line...)
		dst = append(dst, '\n')
	}
	return append(dst, '\n')
}

// Comment returns a comment record, ignored by decoders.
func Comment(text string) []byte {
	return []byte(": " + text + "\n\n")
}

type recordKind int

const (
	recordValid recordKind = iota
	recordEmpty
	recordMalformed
)

type recordBuilder struct {
	event    string
	data     [][]byte
	hasData  bool
	hasEvent bool
	unknown  int
}

func (b *recordBuilder) addLine(line []byte) {
	if line[0] == ':' {
		return
	}

	field, value, found := bytes.Cut(line, []byte(":"))
	if found {
		value = bytes.TrimPrefix(value, []byte(" "))
	}

	switch string(field) {
	case fieldEvent:
		b.event = string(value)
		b.hasEvent = true
	case fieldData:
		b.data = append(b.data, value)
		b.hasData = true
	case fieldID, fieldRetry:
	default:
		b.unknown++
	}
}

func (b *recordBuilder) record() (Record, recordKind) {
	switch {
	case b.hasData || b.hasEvent:
		return Record{Event: b.event, Data: bytes.Join(b.data, []byte("\n"))}, recordValid
	case b.unknown > 0:
		return Record{}, recordMalformed
	default:
		return Record{}, recordEmpty
	}
}

// Split extracts every complete record from buf and returns the remainder
// that starts at the first incomplete record. Records without any event or
// data field are dropped; skipped reports how many of those were not plain
// comments.
func Split(buf []byte) (records []Record, rest []byte, skipped int) {
	var (
		builder recordBuilder
		start   int
		pos     int
	)
	for {
		i := bytes.IndexByte(buf[pos:], '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(buf[pos:pos+i], []byte("\r"))
		pos += i + 1

		if len(line) > 0 {
			builder.addLine(line)
			continue
		}

		switch rec, kind := builder.record(); kind {
		case recordValid:
			records = append(records, rec)
		case recordMalformed:
			skipped++
		}
		builder = recordBuilder{}
		start = pos
	}
	return records, buf[start:], skipped
}
