// Package streamio defines the pluggable byte-stream source/sink
// interfaces the transfer engine reads from and writes to (spec.md §6.3:
// "direct filesystem semantics beyond a pluggable byte-stream source/sink"
// are explicitly out of the protocol core). Concrete adapters live in
// streamio/fileio and streamio/s3io.
package streamio

import "io"

// Source is read from during a Send transfer.
type Source interface {
	io.Reader
	io.Closer
	// Size reports the total byte count if known up front.
	Size() (size int64, known bool)
}

// Sink is written to during a Receive transfer.
type Sink interface {
	io.Writer
	io.Closer
}

// ResumableSource additionally supports seeking to a byte offset, which
// the transfer engine needs to restart a Send from a stored sync point
// (spec.md §4.6.4 Resume).
type ResumableSource interface {
	Source
	io.Seeker
}

// ResumableSink additionally supports seeking, used on the receive side
// when a responder resumes a partially-written destination.
type ResumableSink interface {
	Sink
	io.Seeker
}
