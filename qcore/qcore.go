// Package qcore implements the quarter-core hit container: a 16-cell bitmap
// and matching ToT field, the cell-index mapping for both supported
// layouts, and the hierarchical-tree hitmap codec (see binarytree.go).
package qcore

import (
	"fmt"

	rd53 "github.com/TiniTinyTerminator/rd53event"
)

// QCore holds the 16 cells of one quarter core plus the flags the event
// encoder/decoder attach to it. Config is borrowed, not owned: a QCore
// produced outside an event (e.g. in a unit test) carries a nil config and
// any call that needs cell-index mapping returns ErrInvalidConfig until one
// is attached with SetConfig.
type QCore struct {
	config *rd53.Config

	QCol uint8
	QRow uint8

	hits uint16
	tots uint64

	IsLast        bool
	IsNeighbour   bool
	IsLastInEvent bool
}

// New creates a QCore at (qcol, qrow) bound to cfg. cfg may be nil; it must
// be attached with SetConfig before any cell-index-dependent call.
func New(cfg *rd53.Config, qcol, qrow uint8) *QCore {
	return &QCore{config: cfg, QCol: qcol, QRow: qrow}
}

// SetConfig attaches (or replaces) the borrowed config.
func (q *QCore) SetConfig(cfg *rd53.Config) {
	q.config = cfg
}

// CellIndex maps (col, row) within the quarter core to a flat index in
// [0, 16) under the attached config's layout.
func (q *QCore) CellIndex(col, row uint8) (int, error) {
	if q.config == nil {
		return 0, rd53.ErrInvalidConfig
	}
	return cellIndex(*q.config, col, row)
}

func cellIndex(cfg rd53.Config, col, row uint8) (int, error) {
	switch {
	case cfg.QCoreVert == 2 && cfg.QCoreHoriz == 8:
		if col >= 8 || row >= 2 {
			return 0, fmt.Errorf("%w: (col=%d, row=%d) outside (2,8) layout", rd53.ErrOutOfRange, col, row)
		}
		return int(col) + 8*int(row), nil
	case cfg.QCoreVert == 4 && cfg.QCoreHoriz == 4:
		if col >= 4 || row >= 4 {
			return 0, fmt.Errorf("%w: (col=%d, row=%d) outside (4,4) layout", rd53.ErrOutOfRange, col, row)
		}
		if row < 2 {
			return int(col)*2 + int(row), nil
		}
		return 8 + int(col)*2 + int(row-2), nil
	default:
		return 0, fmt.Errorf("%w: qcore layout (%d, %d) must be (2, 8) or (4, 4)", rd53.ErrInvalidConfig, cfg.QCoreVert, cfg.QCoreHoriz)
	}
}

// GetHit reads the cell at (col, row): whether it is set and its ToT.
func (q *QCore) GetHit(col, row uint8) (present bool, tot uint8, err error) {
	idx, err := q.CellIndex(col, row)
	if err != nil {
		return false, 0, err
	}
	return q.GetHitIndex(idx)
}

// GetHitIndex reads the cell at a flat index in [0, 16).
func (q *QCore) GetHitIndex(index int) (present bool, tot uint8, err error) {
	if index < 0 || index >= 16 {
		return false, 0, fmt.Errorf("%w: cell index %d outside [0, 16)", rd53.ErrOutOfRange, index)
	}
	present = q.hits&(1<<uint(index)) != 0
	tot = uint8(q.tots>>uint(index*4)) & 0xF
	return present, tot, nil
}

// SetHit sets the bit and ToT nibble for the cell at (col, row).
func (q *QCore) SetHit(col, row uint8, tot uint8) error {
	idx, err := q.CellIndex(col, row)
	if err != nil {
		return err
	}
	return q.SetHitIndex(idx, tot)
}

// SetHitIndex sets the bit and ToT nibble for the cell at a flat index.
func (q *QCore) SetHitIndex(index int, tot uint8) error {
	if index < 0 || index >= 16 {
		return fmt.Errorf("%w: cell index %d outside [0, 16)", rd53.ErrOutOfRange, index)
	}
	q.hits |= 1 << uint(index)
	q.tots &^= uint64(0xF) << uint(index*4)
	q.tots |= uint64(tot&0xF) << uint(index*4)
	return nil
}

// GetHitRaw returns the bulk hit mask and packed ToT field.
func (q *QCore) GetHitRaw() (hits uint16, tots uint64) {
	return q.hits, q.tots
}

// SetHitRaw overwrites the bulk hit mask and packed ToT field.
func (q *QCore) SetHitRaw(hits uint16, tots uint64) {
	q.hits = hits
	q.tots = tots
}

// Empty reports whether no cell is set. An empty qcore is never emitted.
func (q *QCore) Empty() bool {
	return q.hits == 0
}

// GetHitVectors returns one rd53.HitCoord per set cell, with X/Y holding the
// in-qcore column/row (not absolute chip coordinates), in column-major
// order: outer col in [0, horiz), inner row in [0, vert).
func (q *QCore) GetHitVectors() ([]rd53.HitCoord, error) {
	if q.config == nil {
		return nil, rd53.ErrInvalidConfig
	}
	cfg := *q.config
	var out []rd53.HitCoord
	for col := uint8(0); col < cfg.QCoreHoriz; col++ {
		for row := uint8(0); row < cfg.QCoreVert; row++ {
			present, tot, err := q.GetHit(col, row)
			if err != nil {
				return nil, err
			}
			if present {
				out = append(out, rd53.HitCoord{X: uint16(col), Y: uint16(row), ToT: tot})
			}
		}
	}
	return out, nil
}

// Equal reports whether q and other carry the same grid position, cell
// contents, and flags.
func (q *QCore) Equal(other *QCore) bool {
	if other == nil {
		return false
	}
	return q.QCol == other.QCol &&
		q.QRow == other.QRow &&
		q.hits == other.hits &&
		q.tots == other.tots &&
		q.IsLast == other.IsLast &&
		q.IsNeighbour == other.IsNeighbour &&
		q.IsLastInEvent == other.IsLastInEvent
}

// Serialize returns the packet sequence for this qcore: an optional COLUMN
// packet (when the previous qcore finished its column), IS_LAST,
// IS_NEIGHBOUR, an optional ROW, the hitmap, and optional per-hit ToT
// nibbles in descending cell-index order.
func (q *QCore) Serialize(prevWasLastInCol bool) ([]rd53.Packet, error) {
	if q.config == nil {
		return nil, rd53.ErrInvalidConfig
	}
	cfg := *q.config
	if q.Empty() {
		return nil, fmt.Errorf("%w: serialize called on an empty qcore", rd53.ErrInvalidState)
	}

	var packets []rd53.Packet

	if prevWasLastInCol {
		packets = append(packets, rd53.Packet{Width: 6, Value: uint64(q.QCol) + 1, Tag: rd53.TagColumn})
	}

	packets = append(packets,
		rd53.Packet{Width: 1, Value: boolBit(q.IsLast), Tag: rd53.TagIsLast},
		rd53.Packet{Width: 1, Value: boolBit(q.IsNeighbour), Tag: rd53.TagIsNeighbour},
	)

	if !q.IsNeighbour {
		packets = append(packets, rd53.Packet{Width: 8, Value: uint64(q.QRow), Tag: rd53.TagRow})
	}

	if cfg.CompressedHitmap {
		bits, length := EncodeHitmap(q.hits)
		packets = append(packets, rd53.Packet{Width: length, Value: uint64(bits), Tag: rd53.TagHitmap})
	} else {
		packets = append(packets, rd53.Packet{Width: 16, Value: uint64(q.hits), Tag: rd53.TagHitmap})
	}

	if !cfg.DropToT {
		for index := 15; index >= 0; index-- {
			if q.hits&(1<<uint(index)) == 0 {
				continue
			}
			tot := uint8(q.tots>>uint(index*4)) & 0xF
			packets = append(packets, rd53.Packet{Width: 4, Value: uint64(tot), Tag: rd53.TagToT})
		}
	}

	return packets, nil
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
