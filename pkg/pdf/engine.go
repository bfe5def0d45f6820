// Package pdf applies visual and cryptographic signatures to PDF documents
// using incremental updates, and reads back embedded signature dictionaries.
package pdf

import (
	"bytes"
	"errors"

	pdflib "github.com/digitorus/pdf"

	"esign-portal/esign-backend/pkg/security"
)

const defaultSignatureReserve = 8192

// Rect is a rectangle in PDF user space, origin at the bottom-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Engine mutates PDF byte streams.
type Engine struct {
	provider         *security.Provider
	signatureReserve int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSignatureReserve sets the number of bytes reserved for the CMS
// envelope on top of the certificate chain size.
func WithSignatureReserve(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.signatureReserve = n
		}
	}
}

// NewEngine creates an engine that signs with the given provider.
func NewEngine(provider *security.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider:         provider,
		signatureReserve: defaultSignatureReserve,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PageCount returns the number of pages in a document.
func (e *Engine) PageCount(data []byte) (n int, err error) {
	defer recoverMalformed("page count", &err)

	rdr, err := openReader(data)
	if err != nil {
		return 0, signingErr("open document", err)
	}
	return rdr.NumPage(), nil
}

func openReader(data []byte) (*pdflib.Reader, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, errors.New("not a PDF document")
	}
	return pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
}

// pageAt returns the page dictionary for a zero-based index, clamped to
// the document's page range.
func pageAt(rdr *pdflib.Reader, index int) (pdflib.Value, ref, error) {
	n := rdr.NumPage()
	if n == 0 {
		return pdflib.Value{}, ref{}, errors.New("document has no pages")
	}
	if index >= n {
		index = n - 1
	}
	if index < 0 {
		index = 0
	}

	page := rdr.Page(index + 1).V
	if page.IsNull() {
		return pdflib.Value{}, ref{}, errors.New("page dictionary not found")
	}
	pageRef, ok := refOf(page)
	if !ok {
		return pdflib.Value{}, ref{}, errors.New("page is not an indirect object")
	}
	return page, pageRef, nil
}
