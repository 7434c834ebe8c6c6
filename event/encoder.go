// Package event implements the per-event packet assembly/decomposition that
// sits between the qcore container and the bit-level stream: grouping hits
// into qcores and back (grouping.go), driving bitstream.Writer to produce a
// word sequence (encoder.go), and the decoder state machine that walks a
// bitstream.Reader back into headers and qcores (decoder.go).
package event

import (
	"fmt"

	rd53 "github.com/TiniTinyTerminator/rd53event"
	"github.com/TiniTinyTerminator/rd53event/bitstream"
)

// Input is one event's worth of encoder input: the trigger tag/position
// carried in its TRIGGER_TAG field, and the absolute hits that make it up.
type Input struct {
	TriggerTag uint8
	TriggerPos uint8
	Hits       []rd53.HitCoord
}

// TraceFunc, when set on an Encoder or Decoder, is called once per packet as
// it is written or read: a caller-supplied packet-trace hook. The core never
// prints.
type TraceFunc func(rd53.Packet)

// Encoder groups hits into qcores and drives a bitstream.Writer to produce
// the 64-bit word sequence for one or more concatenated events.
type Encoder struct {
	Config    rd53.Config
	TraceFunc TraceFunc
}

// NewEncoder returns an Encoder bound to cfg.
func NewEncoder(cfg rd53.Config) *Encoder {
	return &Encoder{Config: cfg}
}

func (e *Encoder) emit(w *bitstream.Writer, p rd53.Packet) {
	w.WritePacket(p.Width, p.Value)
	if e.TraceFunc != nil {
		e.TraceFunc(p)
	}
}

// Encode assembles chipID, the stream-level bcid/l1id (used only when
// Config.BCID/Config.L1ID are set), and one or more events into a single
// concatenated word sequence.
func (e *Encoder) Encode(chipID uint8, bcid, l1id uint16, events []Input) ([]uint64, error) {
	if err := e.Config.Validate(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: encode called with no events", rd53.ErrInvalidState)
	}

	w := bitstream.NewWriter(e.Config.PayloadWidth())

	for i, ev := range events {
		if len(ev.Hits) == 0 {
			return nil, fmt.Errorf("%w: event %d has no hits", rd53.ErrInvalidState, i)
		}

		cores, err := GroupHits(&e.Config, ev.Hits)
		if err != nil {
			return nil, err
		}

		if i == 0 {
			e.emit(w, rd53.Packet{Width: 8, Value: uint64(ev.TriggerTag)<<2 | uint64(ev.TriggerPos&3), Tag: rd53.TagTriggerTag})

			if e.Config.BCID || e.Config.L1ID {
				var ids uint64
				switch {
				case e.Config.BCID && !e.Config.L1ID:
					ids = uint64(bcid)
				case e.Config.L1ID && !e.Config.BCID:
					ids = uint64(l1id)
				default:
					ids = uint64(bcid&0xFF)<<8 | uint64(l1id&0xFF)
				}
				e.emit(w, rd53.Packet{Width: 16, Value: ids, Tag: rd53.TagExtraIDs})
			}
		} else {
			// In-stream separator: a COLUMN value >= 56 (top bits 111) tells
			// the decoder a new event starts here. The following 3 bits are
			// reserved padding the decoder discards before resuming at
			// TRIGGER_TAG, which is then read as a normal 8-bit field.
			e.emit(w, rd53.Packet{Width: 6, Value: 0b111000, Tag: rd53.TagColumn})
			e.emit(w, rd53.Packet{Width: 3, Value: 0, Tag: rd53.TagColumn})
			e.emit(w, rd53.Packet{Width: 8, Value: uint64(ev.TriggerTag)<<2 | uint64(ev.TriggerPos&3), Tag: rd53.TagTriggerTag})
		}

		prevWasLastInCol := true
		for _, core := range cores {
			packets, err := core.Serialize(prevWasLastInCol)
			if err != nil {
				return nil, err
			}
			for _, p := range packets {
				e.emit(w, p)
			}
			prevWasLastInCol = core.IsLast
		}
	}

	// Global terminator: a COLUMN value of 0 tells the decoder there is no
	// further qcore in the stream.
	e.emit(w, rd53.Packet{Width: 6, Value: 0, Tag: rd53.TagColumn})

	return w.Finish(e.Config.ChipID, chipID), nil
}
