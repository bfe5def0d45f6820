package pdf

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	pdflib "github.com/digitorus/pdf"
)

type ref struct {
	id  uint32
	gen uint16
}

func (r ref) String() string {
	return fmt.Sprintf("%d %d R", r.id, r.gen)
}

// refOf returns the indirect object a value was loaded from.
func refOf(v pdflib.Value) (ref, bool) {
	p := v.GetPtr()
	if p.GetID() == 0 {
		return ref{}, false
	}
	return ref{id: p.GetID(), gen: p.GetGen()}, true
}

// writeChild writes v as it appears inside the object owner: a reference
// when v lives in an object of its own, inline otherwise.
func writeChild(buf *bytes.Buffer, v pdflib.Value, owner ref) {
	if r, ok := refOf(v); ok && r != owner {
		buf.WriteString(r.String())
		return
	}
	writeDirect(buf, v, owner)
}

func writeDirect(buf *bytes.Buffer, v pdflib.Value, owner ref) {
	switch v.Kind() {
	case pdflib.Bool:
		buf.WriteString(strconv.FormatBool(v.Bool()))
	case pdflib.Integer:
		buf.WriteString(strconv.FormatInt(v.Int64(), 10))
	case pdflib.Real:
		buf.WriteString(formatNumber(v.Float64()))
	case pdflib.String:
		writeHexString(buf, []byte(v.RawString()))
	case pdflib.Name:
		writeName(buf, v.Name())
	case pdflib.Dict:
		buf.WriteString("<<")
		for _, k := range v.Keys() {
			buf.WriteByte(' ')
			writeName(buf, k)
			buf.WriteByte(' ')
			writeChild(buf, v.Key(k), owner)
		}
		buf.WriteString(" >>")
	case pdflib.Array:
		buf.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeChild(buf, v.Index(i), owner)
		}
		buf.WriteByte(']')
	default:
		// streams are never inlined
		buf.WriteString("null")
	}
}

// writeEntries copies the entries of dictionary v, except skip, as
// " /Key value" pairs.
func writeEntries(buf *bytes.Buffer, v pdflib.Value, skip ...string) {
	owner, _ := refOf(v)
	for _, k := range v.Keys() {
		if slices.Contains(skip, k) {
			continue
		}
		buf.WriteByte(' ')
		writeName(buf, k)
		buf.WriteByte(' ')
		writeChild(buf, v.Key(k), owner)
	}
}

// writeElements copies array elements of v separated by spaces. A single
// non-array value is written as one element.
func writeElements(buf *bytes.Buffer, v pdflib.Value, owner ref) int {
	switch v.Kind() {
	case pdflib.Null:
		return 0
	case pdflib.Array:
		arrOwner, _ := refOf(v)
		for i := 0; i < v.Len(); i++ {
			buf.WriteByte(' ')
			writeChild(buf, v.Index(i), arrOwner)
		}
		return v.Len()
	default:
		buf.WriteByte(' ')
		writeChild(buf, v, owner)
		return 1
	}
}

func writeName(buf *bytes.Buffer, name string) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e || strings.IndexByte("()<>[]{}/%#", c) >= 0 {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func writeHexString(buf *bytes.Buffer, b []byte) {
	buf.WriteByte('<')
	buf.WriteString(strings.ToUpper(hex.EncodeToString(b)))
	buf.WriteByte('>')
}

// literalString escapes raw bytes as a PDF literal string.
func literalString(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, c := range b {
		switch {
		case c == '(' || c == ')' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c < 0x20 || c > 0x7e:
			fmt.Fprintf(&sb, "\\%03o", c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

// textString encodes s as a PDF text string: plain ASCII stays literal,
// anything else becomes UTF-16BE with a byte order mark.
func textString(s string) string {
	ascii := true
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			ascii = false
			break
		}
	}
	if ascii {
		return literalString([]byte(s))
	}

	units := utf16.Encode([]rune(s))
	b := make([]byte, 2, 2+2*len(units))
	b[0], b[1] = 0xfe, 0xff
	for _, u := range units {
		b = append(b, byte(u>>8), byte(u))
	}
	var buf bytes.Buffer
	writeHexString(&buf, b)
	return buf.String()
}

func formatNumber(f float64) string {
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

// formatDate renders t as a PDF date string, D:YYYYMMDDHHmmSSOHH'mm'.
func formatDate(t time.Time) string {
	_, offset := t.Zone()
	if offset == 0 {
		return "D:" + t.Format("20060102150405") + "Z"
	}
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("D:%s%c%02d'%02d'", t.Format("20060102150405"), sign, offset/3600, (offset%3600)/60)
}

// parseDate reads a PDF date string. Missing trailing components default
// to their lowest value; a missing offset means UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	if len(s) < 4 {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}

	digits := s
	rest := ""
	if i := strings.IndexAny(s, "Z+-"); i >= 0 {
		digits, rest = s[:i], s[i:]
	}
	const layout = "20060102150405"
	if len(digits) > len(layout) {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	padded := digits + "00000101000000"[len(digits):]

	loc := time.UTC
	if rest != "" && rest[0] != 'Z' {
		tz := strings.ReplaceAll(rest[1:], "'", "")
		if len(tz) < 2 {
			return time.Time{}, fmt.Errorf("invalid date offset %q", rest)
		}
		hours, err := strconv.Atoi(tz[:2])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date offset %q", rest)
		}
		minutes := 0
		if len(tz) >= 4 {
			if minutes, err = strconv.Atoi(tz[2:4]); err != nil {
				return time.Time{}, fmt.Errorf("invalid date offset %q", rest)
			}
		}
		offset := hours*3600 + minutes*60
		if rest[0] == '-' {
			offset = -offset
		}
		loc = time.FixedZone("", offset)
	}
	return time.ParseInLocation(layout, padded, loc)
}
