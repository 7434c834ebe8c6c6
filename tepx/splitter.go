// Package tepx implements the multi-chip "TEPX" quadrant splitter: a thin
// spatial partitioner in front of event.Encoder that divides a module-wide
// hit list into the four per-chip sub-streams a TEPX ring actually ships on
// its four readout links, grounded on TEPXEvent.cpp in the original
// implementation this codec was distilled from.
package tepx

import (
	rd53 "github.com/TiniTinyTerminator/rd53event"
	"github.com/TiniTinyTerminator/rd53event/event"
)

// Frame is one event's hits in full-module coordinates, spanning the 2x2
// arrangement of chips (twice the single-chip width and height).
type Frame struct {
	TriggerTag uint8
	TriggerPos uint8
	Hits       []rd53.HitCoord
}

// Split partitions frames into 4 quadrants (chip 0 top-left, 1 bottom-left,
// 2 top-right, 3 bottom-right, matching the original's x/y-threshold
// ordering) and encodes each quadrant's sub-stream independently, stamping
// chip i's words with chip id i.
func Split(cfg rd53.Config, bcid, l1id uint16, frames []Frame) ([4][]uint64, error) {
	var out [4][]uint64

	if err := cfg.Validate(); err != nil {
		return out, err
	}

	chipHeight := uint16(cfg.QCoreVert) * rd53.NQCoresVertical
	chipWidth := uint16(cfg.QCoreHoriz) * rd53.NQCoresHorizontal

	var perChip [4][]event.Input

	for _, frame := range frames {
		var quadrantHits [4][]rd53.HitCoord

		for _, h := range frame.Hits {
			var q int
			switch {
			case h.X < chipWidth && h.Y < chipHeight:
				q = 0
			case h.X < chipWidth && h.Y >= chipHeight:
				q = 1
			case h.X >= chipWidth && h.Y < chipHeight:
				q = 2
			default:
				q = 3
			}

			quadrantHits[q] = append(quadrantHits[q], rd53.HitCoord{
				X:   h.X % chipWidth,
				Y:   h.Y % chipHeight,
				ToT: h.ToT,
			})
		}

		for q := 0; q < 4; q++ {
			perChip[q] = append(perChip[q], event.Input{
				TriggerTag: frame.TriggerTag,
				TriggerPos: frame.TriggerPos,
				Hits:       quadrantHits[q],
			})
		}
	}

	for chipID := 0; chipID < 4; chipID++ {
		enc := event.NewEncoder(cfg)
		words, err := enc.Encode(uint8(chipID), bcid, l1id, perChip[chipID])
		if err != nil {
			return out, err
		}
		out[chipID] = words
	}

	return out, nil
}
