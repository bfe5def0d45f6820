// Package testutil builds fixtures shared by package tests: PDFs, signer
// certificates, PKCS#12 containers and signature images.
package testutil

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/big"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"
)

// PDF renders a small A4 document with the given number of pages.
func PDF(t testing.TB, pages int) []byte {
	t.Helper()

	doc := gofpdf.New("P", "mm", "A4", "")
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.SetFont("Arial", "", 14)
		doc.Cell(40, 10, fmt.Sprintf("Agreement page %d", i+1))
	}

	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

// Signer is a generated key pair with its certificate chain.
type Signer struct {
	Key   *rsa.PrivateKey
	Cert  *x509.Certificate
	CA    *x509.Certificate
	Chain []*x509.Certificate
}

// NewSigner issues a leaf certificate for commonName from a throwaway CA.
func NewSigner(t testing.TB, commonName string) *Signer {
	t.Helper()

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1001),
		Subject:               pkix.Name{CommonName: "Test Signing CA", Organization: []string{"eSign Test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	ca, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(424242),
		Subject:      pkix.Name{CommonName: commonName, Organization: []string{"eSign Test"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca, &key.PublicKey, caKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &Signer{Key: key, Cert: cert, CA: ca, Chain: []*x509.Certificate{cert, ca}}
}

// Container wraps the signer into a password-protected PKCS#12 container.
func (s *Signer) Container(t testing.TB, password string) []byte {
	t.Helper()

	pfx, err := pkcs12.Modern.Encode(s.Key, s.Cert, []*x509.Certificate{s.CA}, password)
	require.NoError(t, err)
	return pfx
}

// TrustStore wraps only the certificates into a PKCS#12 container.
func (s *Signer) TrustStore(t testing.TB, password string) []byte {
	t.Helper()

	pfx, err := pkcs12.Modern.EncodeTrustStore([]*x509.Certificate{s.Cert, s.CA}, password)
	require.NoError(t, err)
	return pfx
}

// PNG renders a semi-transparent signature image.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			alpha := uint8(0)
			if y == h/2 || x == y {
				alpha = 255
			}
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 20, B: 120, A: alpha})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
