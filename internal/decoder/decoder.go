// Package decoder splits a chunked byte stream into complete text lines.
//
// Bytes that are not valid in the configured encoding are replaced with U+FFFD
// instead of failing: a malformed byte must never stop the stream or drop a line.
package decoder

import (
	"bytes"
	"iter"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
)

// DefaultMaxLineBytes bounds the carry-over buffer when no newline shows up.
const DefaultMaxLineBytes = 1 << 20

// Decoder turns successive byte chunks into lines terminated by '\n'.
// An unterminated trailing fragment is kept and prefixed to the next chunk.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	enc     Encoding
	dec     *encoding.Decoder
	buf     []byte
	maxLine int
}

// New creates a Decoder. maxLineBytes <= 0 disables the line length limit.
func New(enc Encoding, maxLineBytes int) *Decoder {
	if enc.newDecoder == nil {
		enc = Encoding{Name: EncodingASCII, newDecoder: newASCIIDecoder}
	}
	return &Decoder{
		enc:     enc,
		dec:     enc.newDecoder(),
		maxLine: maxLineBytes,
	}
}

// Encoding returns the name of the encoding lines are decoded from.
func (d *Decoder) Encoding() string { return d.enc.Name }

// Feed buffers chunk and returns the lines that are complete so far.
// The sequence is lazy: lines the caller does not consume remain buffered
// and are yielded by the next sequence.
func (d *Decoder) Feed(chunk []byte) iter.Seq[string] {
	d.buf = append(d.buf, chunk...)
	return d.lines
}

// Pending reports the number of buffered bytes that do not form a complete line yet.
func (d *Decoder) Pending() int { return len(d.buf) }

// Reset discards any buffered partial line.
func (d *Decoder) Reset() {
	d.buf = nil
	d.dec.Reset()
}

func (d *Decoder) lines(yield func(string) bool) {
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		n, skip := idx, 1
		// a buffer of exactly maxLine bytes waits for one more byte, which may be its terminator
		if d.maxLine > 0 && ((idx < 0 && len(d.buf) > d.maxLine) || idx > d.maxLine) {
			n, skip = d.cut(), 0
		} else if idx < 0 {
			if len(d.buf) == 0 {
				d.buf = nil
			}
			return
		}
		line := d.decode(d.buf[:n])
		d.buf = d.buf[n+skip:]
		if !yield(line) {
			return
		}
	}
}

// cut returns where an over-long line is split. For UTF-8 the cut moves back to
// the start of a rune straddling the limit so valid input is never replaced.
func (d *Decoder) cut() int {
	n := d.maxLine
	if d.enc.Name != EncodingUTF8 {
		return n
	}
	for i := n; i > 0 && i > n-utf8.UTFMax; i-- {
		if utf8.RuneStart(d.buf[i]) {
			return i
		}
	}
	return n
}

func (d *Decoder) decode(raw []byte) string {
	if isASCII(raw) {
		return string(raw)
	}
	out, err := d.dec.Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), Replacement)
	}
	return string(out)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
