package pdf

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	pdflib "github.com/digitorus/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esign-portal/esign-backend/internal/testutil"
	"esign-portal/esign-backend/pkg/security"
)

var signingTime = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func newTestEngine(opts ...Option) (*Engine, *security.Provider) {
	provider := security.NewProvider(security.WithClock(func() time.Time { return signingTime }))
	return NewEngine(provider, opts...), provider
}

func collect(t *testing.T, e *Engine, data []byte) []EmbeddedSignature {
	t.Helper()
	var sigs []EmbeddedSignature
	for sig, err := range e.ExtractEmbeddedSignatures(data) {
		require.NoError(t, err)
		sigs = append(sigs, sig)
	}
	return sigs
}

func TestApplyVisualSignature(t *testing.T) {
	engine, _ := newTestEngine()
	src := testutil.PDF(t, 2)

	out, err := engine.ApplyVisualSignature(src, testutil.PNG(t, 40, 20), 0, Rect{X: 100, Y: 100, Width: 150, Height: 50})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(out, src), "original bytes must be preserved")
	appended := string(out[len(src):])
	assert.Contains(t, appended, "/Subtype /Image")
	assert.Contains(t, appended, "/SMask")
	assert.Contains(t, appended, "150 0 0 50 100 100 cm")

	pages, err := engine.PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	assert.Empty(t, collect(t, engine, out))
}

func TestApplyVisualSignature_ClampsPageIndex(t *testing.T) {
	engine, _ := newTestEngine()
	src := testutil.PDF(t, 2)

	out, err := engine.ApplyVisualSignature(src, testutil.PNG(t, 10, 10), 7, Rect{X: 10, Y: 10, Width: 50, Height: 20})
	require.NoError(t, err)

	rdr, err := pdflib.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	assert.Equal(t, pdflib.Stream, rdr.Page(1).V.Key("Contents").Kind())
	last := rdr.Page(2).V.Key("Contents")
	require.Equal(t, pdflib.Array, last.Kind())
	assert.Equal(t, 3, last.Len())
	assert.False(t, rdr.Page(2).V.Key("Resources").Key("Font").IsNull(), "existing resources are kept")
}

// inheritedResourcesPDF builds a one-page document whose fonts are only
// declared on the page tree root.
func inheritedResourcesPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /Resources << /Font << /F1 5 0 R >> >> >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Contents 4 0 R >>",
		"<< /Length 36 >>\nstream\nBT /F1 12 Tf 72 720 Td (Lease) Tj ET\nendstream",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestApplyCryptographicSignature_InheritedResources(t *testing.T) {
	engine, provider := newTestEngine()
	signer := testutil.NewSigner(t, "Erin Walsh")
	src := inheritedResourcesPDF()

	signed, err := engine.ApplyCryptographicSignature(src, SignatureRequest{
		Key:        signer.Key,
		Chain:      signer.Chain,
		SignerName: "Erin Walsh",
		Stamp:      &Rect{X: 100, Y: 100, Width: 200, Height: 80},
	})
	require.NoError(t, err)

	sigs := collect(t, engine, signed.PDF)
	require.Len(t, sigs, 1)
	assert.Equal(t, "Erin Walsh", sigs[0].SignerName)

	br := signed.ByteRange
	content := append(append([]byte{}, signed.PDF[:br[1]]...), signed.PDF[br[2]:br[2]+br[3]]...)
	_, err = provider.VerifyDetached(signed.Envelope, content)
	require.NoError(t, err)

	rdr, err := pdflib.NewReader(bytes.NewReader(signed.PDF), int64(len(signed.PDF)))
	require.NoError(t, err)
	fonts := rdr.Page(1).V.Key("Resources").Key("Font")
	require.Equal(t, pdflib.Dict, fonts.Kind())
	keys := fonts.Keys()
	assert.Contains(t, keys, "F1", "inherited font is carried onto the page")
	assert.Len(t, keys, 2)
}

func TestApplyVisualSignature_Errors(t *testing.T) {
	engine, _ := newTestEngine()
	var se *SigningError

	_, err := engine.ApplyVisualSignature(testutil.PDF(t, 1), []byte("not an image"), 0, Rect{Width: 10, Height: 10})
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))

	_, err = engine.ApplyVisualSignature([]byte("plain text"), testutil.PNG(t, 4, 4), 0, Rect{Width: 10, Height: 10})
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))
}

func TestApplyCryptographicSignature(t *testing.T) {
	engine, provider := newTestEngine()
	signer := testutil.NewSigner(t, "Alice Martin")
	src := testutil.PDF(t, 1)

	signed, err := engine.ApplyCryptographicSignature(src, SignatureRequest{
		Key:        signer.Key,
		Chain:      signer.Chain,
		SignerName: "Alice Martin",
		Qualified:  true,
		Stamp:      &Rect{X: 100, Y: 100, Width: 200, Height: 80},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(signed.PDF, src))
	assert.Equal(t, signingTime, signed.SignedAt)

	sigs := collect(t, engine, signed.PDF)
	require.Len(t, sigs, 1)
	assert.Equal(t, "Alice Martin", sigs[0].SignerName)
	assert.Equal(t, ReasonQualified, sigs[0].Reason)
	assert.Equal(t, "adbe.pkcs7.detached", sigs[0].SubFilter)
	assert.True(t, sigs[0].HasContent)
	assert.True(t, signingTime.Equal(sigs[0].SignDate))

	br := signed.ByteRange
	assert.Equal(t, int64(0), br[0])
	assert.Less(t, br[1], br[2])
	assert.Less(t, br[2]+br[3], int64(len(signed.PDF)), "stamp is appended after the signed range")

	content := append(append([]byte{}, signed.PDF[:br[1]]...), signed.PDF[br[2]:br[2]+br[3]]...)
	info, err := provider.VerifyDetached(signed.Envelope, content)
	require.NoError(t, err)
	assert.Equal(t, "Alice Martin", info.Signer.Subject.CommonName)
	assert.Contains(t, string(signed.PDF), strings.ToUpper(hex.EncodeToString(signed.Envelope)))
	assert.Contains(t, string(signed.PDF[br[2]+br[3]:]), "(Signed by: Alice Martin) Tj")
}

func TestApplyCryptographicSignature_AdvancedWithoutStamp(t *testing.T) {
	engine, _ := newTestEngine()
	signer := testutil.NewSigner(t, "Bob Stone")

	signed, err := engine.ApplyCryptographicSignature(testutil.PDF(t, 1), SignatureRequest{
		Key:        signer.Key,
		Chain:      signer.Chain,
		SignerName: "Bob Stone",
	})
	require.NoError(t, err)

	br := signed.ByteRange
	assert.Equal(t, int64(len(signed.PDF)), br[2]+br[3])
	sigs := collect(t, engine, signed.PDF)
	require.Len(t, sigs, 1)
	assert.Equal(t, ReasonAdvanced, sigs[0].Reason)
}

func TestVisualSignatureDoesNotAddSignatureDictionaries(t *testing.T) {
	engine, _ := newTestEngine()
	signer := testutil.NewSigner(t, "Carol")

	signed, err := engine.ApplyCryptographicSignature(testutil.PDF(t, 1), SignatureRequest{
		Key: signer.Key, Chain: signer.Chain, SignerName: "Carol",
	})
	require.NoError(t, err)
	require.Len(t, collect(t, engine, signed.PDF), 1)

	stamped, err := engine.ApplyVisualSignature(signed.PDF, testutil.PNG(t, 8, 8), 0, Rect{X: 20, Y: 20, Width: 40, Height: 40})
	require.NoError(t, err)
	assert.Len(t, collect(t, engine, stamped), 1)
}

func TestApplyCryptographicSignature_Countersign(t *testing.T) {
	engine, _ := newTestEngine()
	first := testutil.NewSigner(t, "First Signer")
	second := testutil.NewSigner(t, "Second Signer")

	one, err := engine.ApplyCryptographicSignature(testutil.PDF(t, 1), SignatureRequest{
		Key: first.Key, Chain: first.Chain, SignerName: "First Signer",
		Stamp: &Rect{X: 50, Y: 50, Width: 200, Height: 80},
	})
	require.NoError(t, err)
	two, err := engine.ApplyCryptographicSignature(one.PDF, SignatureRequest{
		Key: second.Key, Chain: second.Chain, SignerName: "Second Signer", Qualified: true,
	})
	require.NoError(t, err)

	sigs := collect(t, engine, two.PDF)
	require.Len(t, sigs, 2)
	names := []string{sigs[0].SignerName, sigs[1].SignerName}
	assert.ElementsMatch(t, []string{"First Signer", "Second Signer"}, names)
	assert.Contains(t, string(two.PDF[len(one.PDF):]), "(Signature2)")
}

func TestApplyCryptographicSignature_Errors(t *testing.T) {
	signer := testutil.NewSigner(t, "Dan")
	var se *SigningError

	engine, _ := newTestEngine()
	_, err := engine.ApplyCryptographicSignature(testutil.PDF(t, 1), SignatureRequest{Key: signer.Key, SignerName: "Dan"})
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))

	_, err = engine.ApplyCryptographicSignature([]byte("%PDF-1.4 broken"), SignatureRequest{
		Key: signer.Key, Chain: signer.Chain, SignerName: "Dan",
	})
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))

	small, _ := newTestEngine(WithSignatureReserve(1))
	_, err = small.ApplyCryptographicSignature(testutil.PDF(t, 1), SignatureRequest{
		Key: signer.Key, Chain: signer.Chain, SignerName: "Dan",
	})
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))
	assert.Contains(t, err.Error(), "exceeds reserved space")
}

func TestExtractEmbeddedSignatures_InvalidDocument(t *testing.T) {
	engine, _ := newTestEngine()

	calls := 0
	for _, err := range engine.ExtractEmbeddedSignatures([]byte("garbage")) {
		calls++
		assert.Error(t, err)
	}
	assert.Equal(t, 1, calls)
}
