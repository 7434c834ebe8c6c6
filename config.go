package rd53

import "fmt"

// NQCoresVertical and NQCoresHorizontal are the physical number of
// quarter-cores on the RD53B readout chip, independent of the qcore's
// internal cell layout.
const (
	NQCoresVertical   = 336 / 2
	NQCoresHorizontal = 432 / 8
)

// Config holds the encoding parameters for one stream. It is immutable per
// event: encoders and decoders read it but never mutate it.
type Config struct {
	// QCoreVert and QCoreHoriz describe the cell layout inside a quarter
	// core. The only valid pairs are (2, 8) and (4, 4).
	QCoreVert  uint8
	QCoreHoriz uint8

	// ChipID includes a 2-bit chip id in every word header when true.
	ChipID bool

	// DropToT omits Time-over-Threshold nibbles from the stream when true.
	DropToT bool

	// CompressedHitmap encodes the hitmap as the hierarchical tree (true)
	// or as raw 16 bits (false).
	CompressedHitmap bool

	// BCID includes a 16-bit bunch-crossing id once per stream. When both
	// BCID and L1ID are set, the combined EXTRA_IDS field is still only 16
	// bits wide and carries just the low byte of each value.
	BCID bool

	// L1ID includes a 16-bit L1 trigger id once per stream. See BCID.
	L1ID bool

	// EOSMarker marks the final word. Always set by the encoder; present
	// here only so a zero-value Config still documents the wire contract.
	EOSMarker bool

	// EventsPerStream is reserved and must not alter encoder/decoder
	// behavior.
	EventsPerStream int
}

// DefaultConfig returns the (4, 4) quarter-core layout with every optional
// field enabled.
func DefaultConfig() Config {
	return Config{
		QCoreVert:        4,
		QCoreHoriz:       4,
		ChipID:           true,
		CompressedHitmap: true,
		BCID:             true,
		L1ID:             true,
	}
}

// Validate reports whether c describes a layout the codec can handle.
// Validate returns an error rather than silently substituting a default
// layout, because the qcore layout is load-bearing for every cell-index
// computation downstream: silently substituting a different shape would
// corrupt the wire format rather than merely picking a suboptimal default.
func (c Config) Validate() error {
	switch {
	case c.QCoreVert == 2 && c.QCoreHoriz == 8:
	case c.QCoreVert == 4 && c.QCoreHoriz == 4:
	default:
		return fmt.Errorf("%w: qcore layout (%d, %d) must be (2, 8) or (4, 4)", ErrInvalidConfig, c.QCoreVert, c.QCoreHoriz)
	}
	return nil
}

// CellsPerQCore is the number of pixel cells in a quarter core under this
// layout. Both supported layouts hold 16 cells.
func (c Config) CellsPerQCore() int {
	return int(c.QCoreVert) * int(c.QCoreHoriz)
}

// PayloadWidth is the number of payload bits carried by each 64-bit word:
// 61 when ChipID is set (2 bits chip id + 1 EOS bit reserved), 63 otherwise
// (only the EOS bit reserved).
func (c Config) PayloadWidth() int {
	if c.ChipID {
		return 61
	}
	return 63
}

// MetaWidth is the number of high metadata bits masked off each word: 3 when
// ChipID is set (EOS + 2 chip-id bits), 1 otherwise (EOS only).
func (c Config) MetaWidth() int {
	if c.ChipID {
		return 3
	}
	return 1
}
