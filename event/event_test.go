package event_test

import (
	"errors"
	"sort"
	"testing"

	rd53 "github.com/TiniTinyTerminator/rd53event"
	"github.com/TiniTinyTerminator/rd53event/event"
)

func sortedHits(hits []rd53.HitCoord) []rd53.HitCoord {
	out := append([]rd53.HitCoord(nil), hits...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

func requireHitsEqual(t *testing.T, got, want []rd53.HitCoord) {
	t.Helper()
	got, want = sortedHits(got), sortedHits(want)
	if len(got) != len(want) {
		t.Fatalf("got %d hits, want %d:\ngot:  %+v\nwant: %+v", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hit %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// scenario seeds the encode/decode round-trip suite with a representative
// config and hit set.
type scenario struct {
	name string
	cfg  rd53.Config
	hits []rd53.HitCoord
}

func scenarios() []scenario {
	base := rd53.Config{
		QCoreVert: 4, QCoreHoriz: 4,
		ChipID: true, CompressedHitmap: true, BCID: true, L1ID: true,
	}

	full2x8 := base
	full2x8.QCoreVert, full2x8.QCoreHoriz = 2, 8

	dropTot := base
	dropTot.DropToT = true

	noChipID := base
	noChipID.ChipID = false

	return []scenario{
		{
			name: "single hit",
			cfg:  base,
			hits: []rd53.HitCoord{{X: 0, Y: 0, ToT: 1}},
		},
		{
			name: "sparse hits across qcores",
			cfg:  base,
			hits: []rd53.HitCoord{
				{X: 0, Y: 0, ToT: 1},
				{X: 3, Y: 3, ToT: 15},
				{X: 16, Y: 0, ToT: 7},
				{X: 400, Y: 300, ToT: 2},
			},
		},
		{
			name: "neighbour column run",
			cfg:  base,
			hits: []rd53.HitCoord{
				{X: 0, Y: 0, ToT: 1},
				{X: 1, Y: 4, ToT: 2},
				{X: 2, Y: 8, ToT: 3},
			},
		},
		{
			name: "full 2x8 quarter core",
			cfg:  full2x8,
			hits: func() []rd53.HitCoord {
				var hits []rd53.HitCoord
				for col := uint16(0); col < 8; col++ {
					for row := uint16(0); row < 2; row++ {
						hits = append(hits, rd53.HitCoord{X: col, Y: row, ToT: uint8((col + row) % 16)})
					}
				}
				return hits
			}(),
		},
		{
			name: "drop_tot round trip",
			cfg:  dropTot,
			hits: []rd53.HitCoord{{X: 5, Y: 5, ToT: 9}, {X: 6, Y: 5, ToT: 3}},
		},
		{
			name: "no chip id",
			cfg:  noChipID,
			hits: []rd53.HitCoord{{X: 10, Y: 10, ToT: 4}},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, sc := range scenarios() {
		t.Run(sc.name, func(t *testing.T) {
			enc := event.NewEncoder(sc.cfg)
			words, err := enc.Encode(3, 200, 500, []event.Input{{TriggerTag: 13, TriggerPos: 1, Hits: sc.hits}})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			dec := event.NewDecoder(sc.cfg)
			events, err := dec.Decode(words)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}

			got := events[0]
			if got.Header.TriggerTag != 13 || got.Header.TriggerPos != 1 {
				t.Errorf("header trigger = (%d, %d), want (13, 1)", got.Header.TriggerTag, got.Header.TriggerPos)
			}
			if sc.cfg.ChipID && got.Header.ChipID != 3 {
				t.Errorf("header chip id = %d, want 3", got.Header.ChipID)
			}
			wantBCID, wantL1ID := uint16(200), uint16(500)
			if sc.cfg.BCID && sc.cfg.L1ID {
				// The combined EXTRA_IDS field carries only the low byte of each id.
				wantBCID, wantL1ID = wantBCID&0xFF, wantL1ID&0xFF
			}
			if sc.cfg.BCID && got.Header.BCID != wantBCID {
				t.Errorf("header bcid = %d, want %d", got.Header.BCID, wantBCID)
			}
			if sc.cfg.L1ID && got.Header.L1ID != wantL1ID {
				t.Errorf("header l1id = %d, want %d", got.Header.L1ID, wantL1ID)
			}

			gotHits, err := event.ExpandHits(&sc.cfg, got.QCores)
			if err != nil {
				t.Fatalf("ExpandHits: %v", err)
			}
			wantHits := sc.hits
			if sc.cfg.DropToT {
				// No ToT is on the wire, so every decoded ToT is zero.
				wantHits = make([]rd53.HitCoord, len(sc.hits))
				for i, h := range sc.hits {
					wantHits[i] = rd53.HitCoord{X: h.X, Y: h.Y}
				}
			}
			requireHitsEqual(t, gotHits, wantHits)

			last := got.QCores[len(got.QCores)-1]
			if !last.IsLastInEvent {
				t.Error("final qcore must have IsLastInEvent set")
			}
			for _, core := range got.QCores[:len(got.QCores)-1] {
				if core.IsLastInEvent {
					t.Error("only the final qcore may have IsLastInEvent set")
				}
			}
		})
	}
}

func TestSingleHitProducesExactQCore(t *testing.T) {
	cfg := rd53.Config{QCoreVert: 4, QCoreHoriz: 4, ChipID: true, CompressedHitmap: true, BCID: true, L1ID: true}
	enc := event.NewEncoder(cfg)
	words, err := enc.Encode(3, 200, 500, []event.Input{{TriggerTag: 13, TriggerPos: 1, Hits: []rd53.HitCoord{{X: 0, Y: 0, ToT: 1}}}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec := event.NewDecoder(cfg)
	events, err := dec.Decode(words)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(events[0].QCores) != 1 {
		t.Fatalf("got %d qcores, want 1", len(events[0].QCores))
	}
	q := events[0].QCores[0]
	if q.QCol != 0 || q.QRow != 0 {
		t.Fatalf("qcore at (%d, %d), want (0, 0)", q.QCol, q.QRow)
	}
	if !q.IsLast || !q.IsLastInEvent || q.IsNeighbour {
		t.Fatalf("flags = (last=%v, neighbour=%v, lastInEvent=%v), want (true, false, true)", q.IsLast, q.IsNeighbour, q.IsLastInEvent)
	}
}

func TestMultiEventStream(t *testing.T) {
	cfg := rd53.Config{QCoreVert: 4, QCoreHoriz: 4, ChipID: true, CompressedHitmap: true, BCID: true, L1ID: true}
	enc := event.NewEncoder(cfg)

	events := []event.Input{
		{TriggerTag: 1, TriggerPos: 0, Hits: []rd53.HitCoord{{X: 0, Y: 0, ToT: 1}}},
		{TriggerTag: 2, TriggerPos: 1, Hits: []rd53.HitCoord{{X: 20, Y: 20, ToT: 2}, {X: 21, Y: 20, ToT: 3}}},
		{TriggerTag: 3, TriggerPos: 2, Hits: []rd53.HitCoord{{X: 100, Y: 50, ToT: 4}}},
	}

	words, err := enc.Encode(1, 10, 20, events)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec := event.NewDecoder(cfg)
	decoded, err := dec.Decode(words)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != len(events) {
		t.Fatalf("got %d events, want %d", len(decoded), len(events))
	}
	for i, want := range events {
		got := decoded[i]
		if got.Header.TriggerTag != want.TriggerTag || got.Header.TriggerPos != want.TriggerPos {
			t.Errorf("event %d: header trigger = (%d, %d), want (%d, %d)", i, got.Header.TriggerTag, got.Header.TriggerPos, want.TriggerTag, want.TriggerPos)
		}
		gotHits, err := event.ExpandHits(&cfg, got.QCores)
		if err != nil {
			t.Fatalf("event %d: ExpandHits: %v", i, err)
		}
		requireHitsEqual(t, gotHits, want.Hits)
	}
	// Only the first event carries bcid/l1id.
	if decoded[0].Header.BCID != 10 || decoded[0].Header.L1ID != 20 {
		t.Errorf("first event header = %+v, want bcid=10 l1id=20", decoded[0].Header)
	}
}

func TestGroupHitsRejectsEmpty(t *testing.T) {
	cfg := rd53.Config{QCoreVert: 4, QCoreHoriz: 4}
	if _, err := event.GroupHits(&cfg, nil); !errors.Is(err, rd53.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for an empty hit list, got %v", err)
	}
}

func TestIdempotentGrouping(t *testing.T) {
	cfg := rd53.Config{QCoreVert: 4, QCoreHoriz: 4}
	hits := []rd53.HitCoord{
		{X: 1, Y: 1, ToT: 1}, {X: 2, Y: 2, ToT: 2}, {X: 100, Y: 200, ToT: 3},
	}
	cores, err := event.GroupHits(&cfg, hits)
	if err != nil {
		t.Fatalf("GroupHits: %v", err)
	}
	expanded, err := event.ExpandHits(&cfg, cores)
	if err != nil {
		t.Fatalf("ExpandHits: %v", err)
	}
	requireHitsEqual(t, expanded, hits)
}

func TestDecodeTruncatedStream(t *testing.T) {
	cfg := rd53.Config{QCoreVert: 4, QCoreHoriz: 4, ChipID: true, CompressedHitmap: true}
	enc := event.NewEncoder(cfg)
	words, err := enc.Encode(0, 0, 0, []event.Input{{Hits: []rd53.HitCoord{{X: 0, Y: 0, ToT: 1}}}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec := event.NewDecoder(cfg)
	if _, err := dec.Decode(words[:len(words)-1]); !errors.Is(err, rd53.ErrTruncatedStream) {
		t.Fatalf("expected ErrTruncatedStream with a word dropped, got %v", err)
	}
}

func TestDecodeChipIDMismatch(t *testing.T) {
	cfg := rd53.Config{QCoreVert: 4, QCoreHoriz: 4, ChipID: true, CompressedHitmap: true, DropToT: false}
	enc := event.NewEncoder(cfg)

	var hits []rd53.HitCoord
	for i := uint16(0); i < 200; i++ {
		hits = append(hits, rd53.HitCoord{X: i % 432, Y: (i * 7) % 336, ToT: uint8(i % 16)})
	}
	words, err := enc.Encode(1, 0, 0, []event.Input{{Hits: hits}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(words) < 2 {
		t.Fatalf("expected at least 2 words to make chip-id mismatch meaningful, got %d", len(words))
	}
	words[0] ^= uint64(0b11) << 61 // flip the chip id bits of the first word only

	dec := event.NewDecoder(cfg)
	if _, err := dec.Decode(words); !errors.Is(err, rd53.ErrStreamMismatch) {
		t.Fatalf("expected ErrStreamMismatch, got %v", err)
	}
}

func TestTraceFuncObservesPackets(t *testing.T) {
	cfg := rd53.Config{QCoreVert: 4, QCoreHoriz: 4, ChipID: true, CompressedHitmap: true}
	enc := event.NewEncoder(cfg)
	var tags []rd53.Tag
	enc.TraceFunc = func(p rd53.Packet) { tags = append(tags, p.Tag) }

	if _, err := enc.Encode(0, 0, 0, []event.Input{{Hits: []rd53.HitCoord{{X: 0, Y: 0, ToT: 1}}}}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(tags) == 0 {
		t.Fatal("TraceFunc was never called")
	}
	if tags[0] != rd53.TagTriggerTag {
		t.Errorf("first traced packet tag = %v, want TagTriggerTag", tags[0])
	}
}
