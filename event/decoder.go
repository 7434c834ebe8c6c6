package event

import (
	"fmt"

	rd53 "github.com/TiniTinyTerminator/rd53event"
	"github.com/TiniTinyTerminator/rd53event/bitstream"
	"github.com/TiniTinyTerminator/rd53event/qcore"
)

// Event is one decoded event: its header and the qcores that carried its
// hits, in the order they appeared on the wire.
type Event struct {
	Header rd53.Header
	QCores []*qcore.QCore
}

// Decoder walks a bitstream.Reader through the per-column field state
// machine, reconstructing headers and qcores.
type Decoder struct {
	Config    rd53.Config
	TraceFunc TraceFunc
}

// NewDecoder returns a Decoder bound to cfg.
func NewDecoder(cfg rd53.Config) *Decoder {
	return &Decoder{Config: cfg}
}

func (d *Decoder) take(r *bitstream.Reader, n int, tag rd53.Tag) (uint64, error) {
	v, err := r.Take(n)
	if err != nil {
		return 0, err
	}
	if d.TraceFunc != nil {
		d.TraceFunc(rd53.Packet{Width: n, Value: v, Tag: tag})
	}
	return v, nil
}

// Decode reverses Encoder.Encode: it validates chip-id coherence across
// words, then decodes the concatenated events in the stream.
func (d *Decoder) Decode(words []uint64) ([]Event, error) {
	cfg := d.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: empty word sequence", rd53.ErrTruncatedStream)
	}

	var chipID uint8
	if cfg.ChipID {
		chipID = uint8((words[0] >> 61) & 0b11)
		for i, w := range words {
			if uint8((w>>61)&0b11) != chipID {
				return nil, fmt.Errorf("%w: word %d carries chip id %d, stream started with %d", rd53.ErrStreamMismatch, i, uint8((w>>61)&0b11), chipID)
			}
		}
	}

	r := bitstream.NewReader(words, cfg.PayloadWidth(), cfg.MetaWidth())

	var events []Event
	first := true

	for {
		header := rd53.Header{ChipID: chipID}

		tag, err := d.take(r, 8, rd53.TagTriggerTag)
		if err != nil {
			return nil, err
		}
		header.TriggerTag = uint8(tag >> 2)
		header.TriggerPos = uint8(tag & 3)

		if first && (cfg.BCID || cfg.L1ID) {
			ids, err := d.take(r, 16, rd53.TagExtraIDs)
			if err != nil {
				return nil, err
			}
			switch {
			case cfg.BCID && !cfg.L1ID:
				header.BCID = uint16(ids)
			case cfg.L1ID && !cfg.BCID:
				header.L1ID = uint16(ids)
			default:
				header.BCID = uint16(ids>>8) & 0xFF
				header.L1ID = uint16(ids) & 0xFF
			}
		}
		first = false

		cores, continues, err := d.decodeQCores(r, &cfg)
		if err != nil {
			return nil, err
		}

		events = append(events, Event{Header: header, QCores: cores})

		if !continues {
			return events, nil
		}
	}
}

// decodeQCores reads qcores for one event until a COLUMN field signals
// either stream end (col == 0, continues == false) or a new event (col >=
// 56, continues == true, with the 3 reserved marker bits already skipped).
func (d *Decoder) decodeQCores(r *bitstream.Reader, cfg *rd53.Config) (cores []*qcore.QCore, continues bool, err error) {
	needColumn := true
	var qcol uint8
	var prevQRow uint8

	for {
		if needColumn {
			col, err := d.take(r, 6, rd53.TagColumn)
			if err != nil {
				return nil, false, err
			}
			switch {
			case col == 0:
				if len(cores) == 0 {
					return nil, false, fmt.Errorf("%w: stream terminator before any qcore", rd53.ErrInvalidState)
				}
				cores[len(cores)-1].IsLastInEvent = true
				return cores, false, nil
			case col >= 56:
				r.Skip(3)
				if len(cores) == 0 {
					return nil, false, fmt.Errorf("%w: new-event marker before any qcore", rd53.ErrInvalidState)
				}
				cores[len(cores)-1].IsLastInEvent = true
				return cores, true, nil
			default:
				qcol = uint8(col - 1)
				needColumn = false
			}
			continue
		}

		core := qcore.New(cfg, qcol, 0)

		isLast, err := d.take(r, 1, rd53.TagIsLast)
		if err != nil {
			return nil, false, err
		}
		isNeighbour, err := d.take(r, 1, rd53.TagIsNeighbour)
		if err != nil {
			return nil, false, err
		}
		core.IsLast = isLast == 1
		core.IsNeighbour = isNeighbour == 1

		if core.IsNeighbour {
			core.QRow = prevQRow + 1
		} else {
			row, err := d.take(r, 8, rd53.TagRow)
			if err != nil {
				return nil, false, err
			}
			core.QRow = uint8(row)
		}

		var hits uint16
		if cfg.CompressedHitmap {
			hits, err = qcore.DecodeHitmap(traceReader{r, d, rd53.TagHitmap})
			if err != nil {
				return nil, false, err
			}
		} else {
			raw, err := d.take(r, 16, rd53.TagHitmap)
			if err != nil {
				return nil, false, err
			}
			hits = uint16(raw)
		}

		var tots uint64
		if !cfg.DropToT {
			for index := 15; index >= 0; index-- {
				if hits&(1<<uint(index)) == 0 {
					continue
				}
				tot, err := d.take(r, 4, rd53.TagToT)
				if err != nil {
					return nil, false, err
				}
				tots |= tot << uint(index*4)
			}
		}
		core.SetHitRaw(hits, tots)

		prevQRow = core.QRow
		cores = append(cores, core)

		if core.IsLast {
			needColumn = true
		}
	}
}

// traceReader adapts the decoder's trace hook to qcore.DecodeHitmap's
// bitSource interface, so every peek/take the tree decoder performs is
// visible to TraceFunc with the HITMAP tag.
type traceReader struct {
	r   *bitstream.Reader
	d   *Decoder
	tag rd53.Tag
}

func (t traceReader) Peek(n int) (uint64, error) {
	return t.r.Peek(n)
}

func (t traceReader) Take(n int) (uint64, error) {
	v, err := t.r.Take(n)
	if err != nil {
		return 0, err
	}
	if t.d.TraceFunc != nil {
		t.d.TraceFunc(rd53.Packet{Width: n, Value: v, Tag: t.tag})
	}
	return v, nil
}
