package pdf

import (
	"iter"
	"time"

	pdflib "github.com/digitorus/pdf"
)

const maxFieldDepth = 32

// EmbeddedSignature is what a signature dictionary says about itself.
// HasContent only reports that signature bytes are present; the envelope
// is not verified.
type EmbeddedSignature struct {
	SignerName string
	SignDate   time.Time
	Reason     string
	SubFilter  string
	HasContent bool
}

// ExtractEmbeddedSignatures iterates over the signature dictionaries
// reachable from the document's form fields. Each range over the returned
// sequence parses the document again.
func (e *Engine) ExtractEmbeddedSignatures(pdfBytes []byte) iter.Seq2[EmbeddedSignature, error] {
	return func(yield func(EmbeddedSignature, error) bool) {
		dicts, err := signatureDictionaries(pdfBytes)
		if err != nil {
			yield(EmbeddedSignature{}, err)
			return
		}
		for _, v := range dicts {
			sig, err := decodeSignature(v)
			if !yield(sig, err) {
				return
			}
		}
	}
}

func signatureDictionaries(data []byte) (dicts []pdflib.Value, err error) {
	defer recoverMalformed("extract signatures", &err)

	rdr, err := openReader(data)
	if err != nil {
		return nil, signingErr("open document", err)
	}

	var walk func(field pdflib.Value, fieldType string, depth int)
	walk = func(field pdflib.Value, fieldType string, depth int) {
		if depth > maxFieldDepth {
			return
		}
		if ft := field.Key("FT").Name(); ft != "" {
			fieldType = ft
		}
		if fieldType == "Sig" {
			if v := field.Key("V"); v.Kind() == pdflib.Dict {
				dicts = append(dicts, v)
			}
		}
		kids := field.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			walk(kids.Index(i), fieldType, depth+1)
		}
	}

	fields := rdr.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	for i := 0; i < fields.Len(); i++ {
		walk(fields.Index(i), "", 0)
	}
	return dicts, nil
}

func decodeSignature(v pdflib.Value) (sig EmbeddedSignature, err error) {
	defer recoverMalformed("decode signature", &err)

	sig = EmbeddedSignature{
		SignerName: v.Key("Name").Text(),
		Reason:     v.Key("Reason").Text(),
		SubFilter:  v.Key("SubFilter").Name(),
		HasContent: len(v.Key("Contents").RawString()) > 0,
	}
	if m := v.Key("M").Text(); m != "" {
		if t, perr := parseDate(m); perr == nil {
			sig.SignDate = t
		}
	}
	return sig, nil
}
