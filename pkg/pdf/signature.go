package pdf

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	pdflib "github.com/digitorus/pdf"
)

const (
	ReasonQualified = "Qualified Electronic Signature"
	ReasonAdvanced  = "Advanced Electronic Signature"

	byteRangeWidth = 36
)

// SignatureRequest describes a certificate-backed signature.
type SignatureRequest struct {
	Key        crypto.PrivateKey
	Chain      []*x509.Certificate
	SignerName string
	Qualified  bool
	// Page is zero-based and clamped to the document.
	Page int
	// Stamp, when set, adds a visual "Signed by" box after signing.
	Stamp *Rect
}

// Reason returns the reason string recorded in the signature dictionary.
func (r SignatureRequest) Reason() string {
	if r.Qualified {
		return ReasonQualified
	}
	return ReasonAdvanced
}

// SignedDocument is the result of a cryptographic signature.
type SignedDocument struct {
	PDF       []byte
	Envelope  []byte
	SignedAt  time.Time
	ByteRange [4]int64
}

// ApplyCryptographicSignature embeds a detached PKCS#7 signature in an
// incremental update. The digest covers the whole file except the reserved
// /Contents value. The optional stamp is appended in a later update.
func (e *Engine) ApplyCryptographicSignature(pdfBytes []byte, req SignatureRequest) (signed *SignedDocument, err error) {
	defer recoverMalformed("cryptographic signature", &err)

	if req.Key == nil {
		return nil, signingErr("private key", errors.New("missing private key"))
	}
	if len(req.Chain) == 0 {
		return nil, signingErr("certificate chain", errors.New("missing certificate chain"))
	}

	signedAt := e.provider.Now()
	out, contents, err := e.reserveSignature(pdfBytes, req, signedAt)
	if err != nil {
		return nil, err
	}

	start, end := contents[0], contents[1]
	byteRange := [4]int64{0, start, end, int64(len(out)) - end}
	if err := writeByteRange(out, byteRange); err != nil {
		return nil, signingErr("byte range", err)
	}

	content := make([]byte, 0, int(start)+len(out)-int(end))
	content = append(content, out[:start]...)
	content = append(content, out[end:]...)

	envelope, err := e.provider.SignDetached(content, req.Key, req.Chain)
	if err != nil {
		return nil, signingErr("cms envelope", err)
	}
	encoded := strings.ToUpper(hex.EncodeToString(envelope))
	if int64(len(encoded)) > end-start-2 {
		return nil, signingErr("cms envelope", fmt.Errorf("envelope of %d bytes exceeds reserved space", len(envelope)))
	}
	copy(out[start+1:], encoded)

	if req.Stamp != nil && req.Stamp.X >= 0 && req.Stamp.Y >= 0 {
		if out, err = e.applyStamp(out, req.Page, req.SignerName, *req.Stamp); err != nil {
			return nil, err
		}
	}

	return &SignedDocument{
		PDF:       out,
		Envelope:  envelope,
		SignedAt:  signedAt,
		ByteRange: byteRange,
	}, nil
}

// reserveSignature appends the signature dictionary, its widget, the
// updated catalog and page. It returns the output and the offsets of the
// hex /Contents value including its angle brackets.
func (e *Engine) reserveSignature(src []byte, req SignatureRequest, signedAt time.Time) ([]byte, [2]int64, error) {
	var contents [2]int64

	rdr, err := openReader(src)
	if err != nil {
		return nil, contents, signingErr("open document", err)
	}
	u, err := newIncrementalUpdate(src, rdr)
	if err != nil {
		return nil, contents, signingErr("prepare update", err)
	}
	pageV, pageRef, err := pageAt(rdr, req.Page)
	if err != nil {
		return nil, contents, signingErr("locate page", err)
	}
	root := rdr.Trailer().Key("Root")
	rootRef, ok := refOf(root)
	if !ok {
		return nil, contents, signingErr("locate catalog", errors.New("catalog is not an indirect object"))
	}
	acroForm := root.Key("AcroForm")

	sigRef := u.add()
	widgetRef := u.add()

	reserve := e.signatureReserve
	for _, cert := range req.Chain {
		reserve += len(cert.Raw)
	}

	var sig bytes.Buffer
	sig.WriteString("<< /Type /Sig /Filter /Adobe.PPKLite /SubFilter /adbe.pkcs7.detached")
	sig.WriteString(" /Name " + textString(req.SignerName))
	sig.WriteString(" /Reason " + textString(req.Reason()))
	sig.WriteString(" /M " + literalString([]byte(formatDate(signedAt))))
	sig.WriteString(" /ByteRange [0 0 0 0" + strings.Repeat(" ", byteRangeWidth-len("[0 0 0 0]")) + "]")
	sig.WriteString(" /Contents <" + strings.Repeat("0", 2*reserve) + "> >>")
	u.put(sigRef, sig.Bytes())

	fieldName := fmt.Sprintf("Signature%d", countSignatureFields(acroForm.Key("Fields"))+1)
	u.put(widgetRef, fmt.Appendf(nil,
		"<< /Type /Annot /Subtype /Widget /FT /Sig /T %s /V %s /F 132 /Rect [0 0 0 0] /P %s >>",
		literalString([]byte(fieldName)), sigRef, pageRef))

	var catalog bytes.Buffer
	catalog.WriteString("<<")
	writeEntries(&catalog, root, "AcroForm")
	catalog.WriteString(" /AcroForm <<")
	writeEntries(&catalog, acroForm, "Fields", "SigFlags")
	catalog.WriteString(" /Fields [")
	writeElements(&catalog, acroForm.Key("Fields"), rootRef)
	catalog.WriteString(" " + widgetRef.String() + "] /SigFlags 3 >> >>")
	u.put(rootRef, catalog.Bytes())

	var page bytes.Buffer
	page.WriteString("<<")
	writeEntries(&page, pageV, "Annots")
	page.WriteString(" /Annots [")
	writeElements(&page, pageV.Key("Annots"), pageRef)
	page.WriteString(" " + widgetRef.String() + "] >>")
	u.put(pageRef, page.Bytes())

	out, offsets := u.finish()

	sigStart := offsets[sigRef]
	marker := []byte("/Contents <")
	i := bytes.Index(out[sigStart:], marker)
	if i < 0 {
		return nil, contents, signingErr("reserve signature", errors.New("contents placeholder not found"))
	}
	contents[0] = sigStart + int64(i+len(marker)-1)
	contents[1] = contents[0] + int64(2*reserve) + 2
	return out, contents, nil
}

// writeByteRange fills the fixed-width /ByteRange placeholder in place.
func writeByteRange(out []byte, br [4]int64) error {
	const marker = "/ByteRange ["
	i := bytes.LastIndex(out[:br[1]], []byte(marker))
	if i < 0 {
		return errors.New("byte range placeholder not found")
	}
	value := fmt.Sprintf("[%d %d %d %d", br[0], br[1], br[2], br[3])
	if len(value)+1 > byteRangeWidth {
		return fmt.Errorf("byte range %v does not fit placeholder", br)
	}
	value += strings.Repeat(" ", byteRangeWidth-len(value)-1) + "]"
	copy(out[i+len(marker)-1:], value)
	return nil
}

func countSignatureFields(fields pdflib.Value) int {
	n := 0
	for i := 0; i < fields.Len(); i++ {
		if fields.Index(i).Key("FT").Name() == "Sig" {
			n++
		}
	}
	return n
}
