// Package rd53 implements a bit-exact codec for the RD53B pixel-detector
// readout data stream: an encoder that packs per-event hit information into
// a sequence of 64-bit words, and a decoder that reverses that packing.
package rd53

import "errors"

// Sentinel errors returned by the codec. Callers distinguish kinds with
// errors.Is; call sites wrap these with fmt.Errorf("...: %w", ...) to attach
// context such as coordinates or bit offsets.
var (
	// ErrInvalidConfig is returned when the qcore layout is not one of the
	// two supported shapes, or an operation needs a Config and none is set.
	ErrInvalidConfig = errors.New("rd53: invalid config")

	// ErrOutOfRange is returned for an out-of-bounds cell index, (col, row)
	// pair, qcol, or qrow.
	ErrOutOfRange = errors.New("rd53: value out of range")

	// ErrInvalidState is returned when an operation is attempted in a state
	// that forbids it: encoding with no events or an event with no hits,
	// grouping an empty hit list, serializing an empty qcore, or decoding a
	// stream whose terminator or new-event marker precedes any qcore.
	ErrInvalidState = errors.New("rd53: invalid state")

	// ErrStreamMismatch is returned when the chip-id bits differ across
	// words of an input stream.
	ErrStreamMismatch = errors.New("rd53: chip id mismatch across stream")

	// ErrTruncatedStream is returned when the decoder requests bits past
	// the end of the word sequence.
	ErrTruncatedStream = errors.New("rd53: truncated stream")
)
