package bitstream

import (
	"fmt"

	"github.com/TiniTinyTerminator/rd53event"
)

// Reader is a cursor over a word sequence that extracts arbitrary-width bit
// fields across word boundaries. bitIndex is measured in payload bits,
// i.e. it already skips the metadata bits carried by each word.
type Reader struct {
	words        []uint64
	payloadWidth int
	metaWidth    int
	bitIndex     uint64
}

// NewReader creates a Reader over words, using payloadWidth payload bits and
// metaWidth metadata bits per word (61/3 with chip id, 63/1 without).
func NewReader(words []uint64, payloadWidth, metaWidth int) *Reader {
	return &Reader{words: words, payloadWidth: payloadWidth, metaWidth: metaWidth}
}

// Peek returns the next n bits (1 <= n <= 32) without advancing the cursor.
func (r *Reader) Peek(n int) (uint64, error) {
	return r.extract(n)
}

// Take returns the next n bits (1 <= n <= 32) and advances the cursor by n.
func (r *Reader) Take(n int) (uint64, error) {
	v, err := r.extract(n)
	if err != nil {
		return 0, err
	}
	r.bitIndex += uint64(n)
	return v, nil
}

// BitIndex reports the current cursor position in payload bits.
func (r *Reader) BitIndex() uint64 {
	return r.bitIndex
}

// Skip advances the cursor by n bits without reading them.
func (r *Reader) Skip(n int) {
	r.bitIndex += uint64(n)
}

func (r *Reader) extract(n int) (uint64, error) {
	wordIndex := r.bitIndex / uint64(r.payloadWidth)
	bitOffset := r.bitIndex % uint64(r.payloadWidth)

	if wordIndex >= uint64(len(r.words)) {
		return 0, fmt.Errorf("%w: requested %d bits at payload offset %d past %d words", rd53.ErrTruncatedStream, n, r.bitIndex, len(r.words))
	}

	a := r.words[wordIndex] << uint(r.metaWidth) >> uint(r.metaWidth)

	var b uint64
	if wordIndex+1 < uint64(len(r.words)) {
		b = r.words[wordIndex+1] << uint(r.metaWidth)
	}

	full := (a << bitOffset) | (b >> (64 - bitOffset))

	value := (full >> uint(r.payloadWidth-n)) & mask64(n)
	return value, nil
}
