package csvio

// encoding.go turns raw bank exports into clean UTF-8 before line splitting.
//
// Exports arrive as UTF-8 (with or without BOM), as UTF-16 with BOM from
// spreadsheet "Unicode text" saves, or as Windows-1252 from older online
// banking portals. The readers here handle all three without loading the
// whole file:
//
//   - a leading BOM selects UTF-8 or UTF-16 decoding and is dropped
//   - otherwise bytes that are not valid UTF-8 are decoded as Windows-1252,
//     so a Latin-1 "ä" (0xE4) becomes "ä" instead of a replacement rune

import (
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decode wraps r so that reads yield UTF-8 text with any BOM removed.
func Decode(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(legacyFallback{}))
}

// legacyFallback passes valid UTF-8 through and decodes every invalid byte
// as Windows-1252.
type legacyFallback struct{ transform.NopResetter }

func (legacyFallback) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c < utf8.RuneSelf {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}

		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size == 1 {
			// A valid sequence split across reads must not be decoded byte-wise.
			if !atEOF && !utf8.FullRune(src[nSrc:]) {
				return nDst, nSrc, transform.ErrShortSrc
			}
			r = charmap.Windows1252.DecodeByte(c)
		}

		if nDst+utf8.RuneLen(r) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += utf8.EncodeRune(dst[nDst:], r)
		nSrc += size
	}
	return nDst, nSrc, nil
}
