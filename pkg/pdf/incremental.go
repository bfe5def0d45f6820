package pdf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strconv"

	pdflib "github.com/digitorus/pdf"
)

type pendingObject struct {
	ref  ref
	body []byte
}

// incrementalUpdate appends new and replaced objects after the original
// bytes, followed by a cross-reference section chained to the previous one.
// The original bytes are never modified.
type incrementalUpdate struct {
	base       []byte
	trailer    pdflib.Value
	prevXref   int64
	xrefStream bool
	size       uint32
	objects    []pendingObject
}

func newIncrementalUpdate(base []byte, rdr *pdflib.Reader) (*incrementalUpdate, error) {
	trailer := rdr.Trailer()
	if !trailer.Key("Encrypt").IsNull() {
		return nil, errors.New("encrypted documents are not supported")
	}
	size := trailer.Key("Size").Int64()
	if size <= 0 {
		return nil, errors.New("trailer has no /Size")
	}

	prev, err := lastStartXref(base)
	if err != nil {
		return nil, err
	}
	section := bytes.TrimLeft(base[prev:], " \t\r\n")

	return &incrementalUpdate{
		base:       base,
		trailer:    trailer,
		prevXref:   prev,
		xrefStream: !bytes.HasPrefix(section, []byte("xref")),
		size:       uint32(size),
	}, nil
}

// add allocates a new object number.
func (u *incrementalUpdate) add() ref {
	r := ref{id: u.size}
	u.size++
	return r
}

// put stores the body of a new object or a replacement of an existing one.
func (u *incrementalUpdate) put(r ref, body []byte) {
	for i := range u.objects {
		if u.objects[i].ref == r {
			u.objects[i].body = body
			return
		}
	}
	u.objects = append(u.objects, pendingObject{ref: r, body: body})
}

// putStream stores a stream object; entries are extra dictionary entries
// written before /Length.
func (u *incrementalUpdate) putStream(r ref, entries string, data []byte) {
	var buf bytes.Buffer
	buf.WriteString("<<")
	if entries != "" {
		buf.WriteByte(' ')
		buf.WriteString(entries)
	}
	fmt.Fprintf(&buf, " /Length %d >>\nstream\n", len(data))
	buf.Write(data)
	buf.WriteString("\nendstream")
	u.put(r, buf.Bytes())
}

// finish serializes the update and returns the full document along with
// the byte offset of each written object.
func (u *incrementalUpdate) finish() ([]byte, map[ref]int64) {
	var buf bytes.Buffer
	buf.Grow(len(u.base) + 4096)
	buf.Write(u.base)
	if n := len(u.base); n > 0 && u.base[n-1] != '\n' && u.base[n-1] != '\r' {
		buf.WriteByte('\n')
	}

	offsets := make(map[ref]int64, len(u.objects)+1)
	for _, obj := range u.objects {
		offsets[obj.ref] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d %d obj\n", obj.ref.id, obj.ref.gen)
		buf.Write(obj.body)
		buf.WriteString("\nendobj\n")
	}

	if u.xrefStream {
		u.writeXrefStream(&buf, offsets)
	} else {
		u.writeXrefTable(&buf, offsets)
	}
	return buf.Bytes(), offsets
}

func (u *incrementalUpdate) writeXrefTable(buf *bytes.Buffer, offsets map[ref]int64) {
	start := int64(buf.Len())
	refs := sortedRefs(offsets)

	buf.WriteString("xref\n")
	for _, run := range contiguousRuns(refs) {
		fmt.Fprintf(buf, "%d %d\n", run[0].id, len(run))
		for _, r := range run {
			fmt.Fprintf(buf, "%010d %05d n\r\n", offsets[r], r.gen)
		}
	}

	buf.WriteString("trailer\n<<")
	fmt.Fprintf(buf, " /Size %d", u.size)
	u.writeTrailerEntries(buf)
	fmt.Fprintf(buf, " /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", u.prevXref, start)
}

func (u *incrementalUpdate) writeXrefStream(buf *bytes.Buffer, offsets map[ref]int64) {
	self := u.add()
	start := int64(buf.Len())
	offsets[self] = start
	refs := sortedRefs(offsets)

	var index bytes.Buffer
	var rows bytes.Buffer
	row := make([]byte, 11)
	for _, run := range contiguousRuns(refs) {
		fmt.Fprintf(&index, " %d %d", run[0].id, len(run))
		for _, r := range run {
			row[0] = 1
			binary.BigEndian.PutUint64(row[1:9], uint64(offsets[r]))
			binary.BigEndian.PutUint16(row[9:11], r.gen)
			rows.Write(row)
		}
	}

	fmt.Fprintf(buf, "%d %d obj\n<< /Type /XRef /Size %d /W [1 8 2] /Index [%s ]", self.id, self.gen, u.size, index.String())
	u.writeTrailerEntries(buf)
	fmt.Fprintf(buf, " /Prev %d /Length %d >>\nstream\n", u.prevXref, rows.Len())
	buf.Write(rows.Bytes())
	fmt.Fprintf(buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", start)
}

func (u *incrementalUpdate) writeTrailerEntries(buf *bytes.Buffer) {
	owner, _ := refOf(u.trailer)
	for _, key := range []string{"Root", "Info", "ID"} {
		v := u.trailer.Key(key)
		if v.IsNull() {
			continue
		}
		buf.WriteByte(' ')
		writeName(buf, key)
		buf.WriteByte(' ')
		writeChild(buf, v, owner)
	}
}

func sortedRefs(offsets map[ref]int64) []ref {
	refs := make([]ref, 0, len(offsets))
	for r := range offsets {
		refs = append(refs, r)
	}
	slices.SortFunc(refs, func(a, b ref) int {
		return int(a.id) - int(b.id)
	})
	return refs
}

func contiguousRuns(refs []ref) [][]ref {
	var runs [][]ref
	for i := 0; i < len(refs); {
		j := i + 1
		for j < len(refs) && refs[j].id == refs[j-1].id+1 {
			j++
		}
		runs = append(runs, refs[i:j])
		i = j
	}
	return runs
}

// lastStartXref reads the offset named by the final startxref keyword.
func lastStartXref(data []byte) (int64, error) {
	i := bytes.LastIndex(data, []byte("startxref"))
	if i < 0 {
		return 0, errors.New("missing startxref")
	}
	fields := bytes.Fields(data[i+len("startxref"):])
	if len(fields) == 0 {
		return 0, errors.New("missing startxref offset")
	}
	off, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil || off < 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("invalid startxref offset %q", fields[0])
	}
	return off, nil
}
