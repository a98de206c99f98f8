package decoder

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	EncodingASCII = "ascii"
	EncodingUTF8  = "utf-8"
)

// Replacement is substituted for every byte sequence that is not valid in the configured encoding.
const Replacement = "\uFFFD"

var ErrUnknownEncoding = errors.New("unknown encoding")

// Encoding produces decoders that turn raw line bytes into UTF-8 strings.
type Encoding struct {
	Name       string
	newDecoder func() *encoding.Decoder
}

// Lookup resolves an encoding by name. "ascii" and "utf-8" are handled directly;
// other names go through the WHATWG index (latin1, windows-1252, shift_jis, ...).
func Lookup(name string) (Encoding, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", EncodingASCII, "us-ascii":
		return Encoding{Name: EncodingASCII, newDecoder: newASCIIDecoder}, nil
	case EncodingUTF8, "utf8":
		return Encoding{Name: EncodingUTF8, newDecoder: unicode.UTF8.NewDecoder}, nil
	}
	enc, err := htmlindex.Get(n)
	if err != nil {
		return Encoding{}, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = n
	}
	// lines are split on the '\n' byte, which only works for ASCII-compatible encodings
	if strings.HasPrefix(canonical, "utf-16") {
		return Encoding{}, fmt.Errorf("%w: %q is not ASCII-compatible", ErrUnknownEncoding, name)
	}
	return Encoding{Name: canonical, newDecoder: enc.NewDecoder}, nil
}

func newASCIIDecoder() *encoding.Decoder {
	return &encoding.Decoder{Transformer: asciiDecoder{}}
}

// asciiDecoder passes 7-bit bytes through and replaces anything else with U+FFFD.
type asciiDecoder struct{ transform.NopResetter }

func (asciiDecoder) Transform(dst, src []byte, _ bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		b := src[nSrc]
		if b < utf8.RuneSelf {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = b
			nDst++
			nSrc++
			continue
		}
		if nDst+len(Replacement) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], Replacement)
		nSrc++
	}
	return nDst, nSrc, nil
}
