package event

import (
	"fmt"
	"sort"

	rd53 "github.com/TiniTinyTerminator/rd53event"
	"github.com/TiniTinyTerminator/rd53event/qcore"
)

type qcoreKey struct {
	qcol uint8
	qrow uint8
}

// GroupHits partitions hits into qcores keyed by (qcol, qrow), ordered
// lexicographically with qcol primary, and assigns IsLast/IsNeighbour/
// IsLastInEvent in a single pass over the ordered result.
func GroupHits(cfg *rd53.Config, hits []rd53.HitCoord) ([]*qcore.QCore, error) {
	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: no hits to group into qcores", rd53.ErrInvalidState)
	}

	cores := make(map[qcoreKey]*qcore.QCore)
	for _, h := range hits {
		qcol := uint8(h.X / uint16(cfg.QCoreHoriz))
		qrow := uint8(h.Y / uint16(cfg.QCoreVert))
		colInQCore := uint8(h.X % uint16(cfg.QCoreHoriz))
		rowInQCore := uint8(h.Y % uint16(cfg.QCoreVert))

		if qcol >= rd53.NQCoresHorizontal {
			return nil, fmt.Errorf("%w: qcol %d outside [0, %d)", rd53.ErrOutOfRange, qcol, rd53.NQCoresHorizontal)
		}
		if qrow >= rd53.NQCoresVertical {
			return nil, fmt.Errorf("%w: qrow %d outside [0, %d)", rd53.ErrOutOfRange, qrow, rd53.NQCoresVertical)
		}

		key := qcoreKey{qcol, qrow}
		core, ok := cores[key]
		if !ok {
			core = qcore.New(cfg, qcol, qrow)
			cores[key] = core
		}
		if err := core.SetHit(colInQCore, rowInQCore, h.ToT); err != nil {
			return nil, err
		}
	}

	keys := make([]qcoreKey, 0, len(cores))
	for k := range cores {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].qcol != keys[j].qcol {
			return keys[i].qcol < keys[j].qcol
		}
		return keys[i].qrow < keys[j].qrow
	})

	ordered := make([]*qcore.QCore, len(keys))
	for i, k := range keys {
		ordered[i] = cores[k]
	}

	for i, core := range ordered {
		core.IsLastInEvent = i == len(ordered)-1
		core.IsLast = i == len(ordered)-1 || ordered[i+1].QCol != core.QCol
		core.IsNeighbour = i > 0 && ordered[i-1].QCol == core.QCol && ordered[i-1].QRow+1 == core.QRow
	}

	return ordered, nil
}

// ExpandHits reverses GroupHits: it concatenates each qcore's hit vectors,
// translated to absolute chip coordinates.
func ExpandHits(cfg *rd53.Config, cores []*qcore.QCore) ([]rd53.HitCoord, error) {
	var out []rd53.HitCoord
	for _, core := range cores {
		vecs, err := core.GetHitVectors()
		if err != nil {
			return nil, err
		}
		for _, v := range vecs {
			out = append(out, rd53.HitCoord{
				X:   v.X + uint16(core.QCol)*uint16(cfg.QCoreHoriz),
				Y:   v.Y + uint16(core.QRow)*uint16(cfg.QCoreVert),
				ToT: v.ToT,
			})
		}
	}
	return out, nil
}
