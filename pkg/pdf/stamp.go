package pdf

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const stampFont = "/Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding"

// imageContent draws the named image XObject scaled into rect.
func imageContent(name string, rect Rect) []byte {
	return fmt.Appendf(nil, "q\n%s 0 0 %s %s %s cm\n/%s Do\nQ\n",
		formatNumber(rect.Width), formatNumber(rect.Height),
		formatNumber(rect.X), formatNumber(rect.Y), name)
}

// stampContent draws a light filled rectangle with a "Signed by" caption.
func stampContent(font, signerName string, rect Rect) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "q\n0.9 0.9 1 rg\n%s %s %s %s re\nf\n",
		formatNumber(rect.X), formatNumber(rect.Y), formatNumber(rect.Width), formatNumber(rect.Height))
	fmt.Fprintf(&b, "BT\n0 0 0 rg\n/%s 10 Tf\n%s %s Td\n%s Tj\nET\nQ\n",
		font, formatNumber(rect.X+5), formatNumber(rect.Y+rect.Height-15),
		literalString(winAnsi("Signed by: "+signerName)))
	return b.Bytes()
}

// winAnsi encodes s for a WinAnsiEncoding font; unmappable runes become
// substitution characters.
func winAnsi(s string) []byte {
	enc := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}
