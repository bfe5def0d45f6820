package pdf

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	pdflib "github.com/digitorus/pdf"
)

// pageResources collects resources added to a page by an overlay.
type pageResources struct {
	xobjects map[string]ref
	fonts    map[string]ref
}

func (r *pageResources) addImage(u *incrementalUpdate, img *imageXObject) string {
	obj := img.writeTo(u)
	name := fmt.Sprintf("ESigIm%d", obj.id)
	r.xobjects[name] = obj
	return name
}

func (r *pageResources) addStampFont(u *incrementalUpdate) string {
	obj := u.add()
	u.put(obj, []byte("<< "+stampFont+" >>"))
	name := fmt.Sprintf("ESigF%d", obj.id)
	r.fonts[name] = obj
	return name
}

type drawFunc func(u *incrementalUpdate, res *pageResources) ([]byte, error)

// ApplyVisualSignature draws an image onto a page. Page is zero-based and
// clamped to the last page. The original bytes are kept as a prefix of the
// result; only new objects and the rewritten page follow them.
func (e *Engine) ApplyVisualSignature(pdfBytes, imageBytes []byte, page int, rect Rect) (out []byte, err error) {
	defer recoverMalformed("visual signature", &err)

	img, err := decodeImage(imageBytes)
	if err != nil {
		return nil, signingErr("signature image", err)
	}
	return e.overlay(pdfBytes, page, func(u *incrementalUpdate, res *pageResources) ([]byte, error) {
		return imageContent(res.addImage(u, img), rect), nil
	})
}

// applyStamp draws the decorative "Signed by" box of a certificate signature.
func (e *Engine) applyStamp(pdfBytes []byte, page int, signerName string, rect Rect) ([]byte, error) {
	return e.overlay(pdfBytes, page, func(u *incrementalUpdate, res *pageResources) ([]byte, error) {
		return stampContent(res.addStampFont(u), signerName, rect), nil
	})
}

// overlay appends an incremental update that wraps the page's existing
// content in q/Q and appends the drawing produced by draw.
func (e *Engine) overlay(src []byte, page int, draw drawFunc) ([]byte, error) {
	rdr, err := openReader(src)
	if err != nil {
		return nil, signingErr("open document", err)
	}
	u, err := newIncrementalUpdate(src, rdr)
	if err != nil {
		return nil, signingErr("prepare update", err)
	}
	pageV, pageRef, err := pageAt(rdr, page)
	if err != nil {
		return nil, signingErr("locate page", err)
	}

	res := &pageResources{xobjects: map[string]ref{}, fonts: map[string]ref{}}
	content, err := draw(u, res)
	if err != nil {
		return nil, signingErr("draw overlay", err)
	}

	prefix := u.add()
	u.putStream(prefix, "", []byte("q\n"))
	suffix := u.add()
	u.putStream(suffix, "", append([]byte("\nQ\n"), content...))

	var body bytes.Buffer
	body.WriteString("<<")
	writeEntries(&body, pageV, "Contents", "Resources")
	body.WriteString(" /Contents [")
	body.WriteString(prefix.String())
	writeElements(&body, pageV.Key("Contents"), pageRef)
	body.WriteByte(' ')
	body.WriteString(suffix.String())
	body.WriteString("] /Resources ")
	writeResources(&body, pdflib.Page{V: pageV}.Resources(), res)
	body.WriteString(" >>")
	u.put(pageRef, body.Bytes())

	out, _ := u.finish()
	return out, nil
}

// writeResources writes the page's effective resources merged with the
// overlay's additions.
func writeResources(buf *bytes.Buffer, existing pdflib.Value, add *pageResources) {
	var skip []string
	if len(add.xobjects) > 0 {
		skip = append(skip, "XObject")
	}
	if len(add.fonts) > 0 {
		skip = append(skip, "Font")
	}

	buf.WriteString("<<")
	writeEntries(buf, existing, skip...)
	writeResourceCategory(buf, "XObject", existing.Key("XObject"), add.xobjects)
	writeResourceCategory(buf, "Font", existing.Key("Font"), add.fonts)
	buf.WriteString(" >>")
}

func writeResourceCategory(buf *bytes.Buffer, category string, existing pdflib.Value, added map[string]ref) {
	if len(added) == 0 {
		return
	}
	buf.WriteByte(' ')
	writeName(buf, category)
	buf.WriteString(" <<")
	writeEntries(buf, existing, slices.Collect(maps.Keys(added))...)
	for _, name := range slices.Sorted(maps.Keys(added)) {
		buf.WriteByte(' ')
		writeName(buf, name)
		buf.WriteByte(' ')
		buf.WriteString(added[name].String())
	}
	buf.WriteString(" >>")
}
