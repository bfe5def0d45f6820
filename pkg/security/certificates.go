package security

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCertificateLoad    = errors.New("certificate container could not be loaded")
	ErrNoCertificateFound = errors.New("no certificate found in container")
)

// Entry is one signing identity held by a certificate container.
type Entry struct {
	Alias       string
	PrivateKey  crypto.PrivateKey
	Certificate *x509.Certificate
	// Chain starts with Certificate.
	Chain []*x509.Certificate
}

// Identity is a decoded certificate container.
type Identity struct {
	entries []Entry
}

// NewIdentity builds an identity from already decoded entries.
func NewIdentity(entries ...Entry) *Identity {
	return &Identity{entries: entries}
}

// Aliases returns the entry aliases in enumeration order.
func (id *Identity) Aliases() []string {
	aliases := make([]string, 0, len(id.entries))
	for _, e := range id.entries {
		aliases = append(aliases, e.Alias)
	}
	return aliases
}

// Entry looks up an entry by alias.
func (id *Identity) Entry(alias string) (*Entry, bool) {
	for i := range id.entries {
		if id.entries[i].Alias == alias {
			return &id.entries[i], true
		}
	}
	return nil, false
}

// CertificateMetadata is the subset of certificate fields recorded with a signature.
type CertificateMetadata struct {
	SerialNumber string    `json:"serial_number"`
	IssuerDN     string    `json:"issuer_dn"`
	SubjectDN    string    `json:"subject_dn"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
}

// ValidAt reports whether now falls inside the validity window.
func (m CertificateMetadata) ValidAt(now time.Time) bool {
	return !now.Before(m.NotBefore) && !now.After(m.NotAfter)
}

// CertificateExtractor loads certificate containers and reads signer metadata.
type CertificateExtractor struct {
	provider *Provider
}

// NewCertificateExtractor creates an extractor using the given provider.
func NewCertificateExtractor(provider *Provider) *CertificateExtractor {
	return &CertificateExtractor{provider: provider}
}

// Load decodes a password-protected container. A container holding only
// certificates yields an identity without signing entries.
func (e *CertificateExtractor) Load(container []byte, passphrase string) (*Identity, error) {
	if len(container) == 0 {
		return nil, fmt.Errorf("%w: empty container", ErrCertificateLoad)
	}

	key, leaf, caCerts, err := e.provider.DecodeContainer(container, passphrase)
	if err == nil {
		chain := append([]*x509.Certificate{leaf}, caCerts...)
		return NewIdentity(Entry{
			Alias:       aliasFor(leaf, 0),
			PrivateKey:  key,
			Certificate: leaf,
			Chain:       chain,
		}), nil
	}

	if _, tsErr := e.provider.DecodeTrustStore(container, passphrase); tsErr == nil {
		return NewIdentity(), nil
	}
	return nil, fmt.Errorf("%w: %w", ErrCertificateLoad, err)
}

// SelectSigningEntry returns the alias of the first enumerated entry.
func (e *CertificateExtractor) SelectSigningEntry(id *Identity) (string, error) {
	if id == nil || len(id.entries) == 0 {
		return "", ErrNoCertificateFound
	}
	return id.entries[0].Alias, nil
}

// ExtractMetadata reads serial, issuer, subject and validity window of the
// certificate stored under alias.
func (e *CertificateExtractor) ExtractMetadata(id *Identity, alias string) (*CertificateMetadata, error) {
	entry, ok := id.Entry(alias)
	if !ok || entry.Certificate == nil {
		return nil, fmt.Errorf("%w: alias %q", ErrNoCertificateFound, alias)
	}
	return MetadataOf(entry.Certificate), nil
}

// MetadataOf reads the recorded fields of a certificate.
func MetadataOf(cert *x509.Certificate) *CertificateMetadata {
	return &CertificateMetadata{
		SerialNumber: cert.SerialNumber.String(),
		IssuerDN:     cert.Issuer.String(),
		SubjectDN:    cert.Subject.String(),
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
	}
}

// IsCurrentlyValid is a date-range check only.
func IsCurrentlyValid(cert *x509.Certificate, now time.Time) bool {
	if cert == nil {
		return false
	}
	return MetadataOf(cert).ValidAt(now)
}

func aliasFor(cert *x509.Certificate, index int) string {
	if cert != nil {
		if cn := strings.TrimSpace(cert.Subject.CommonName); cn != "" {
			return strings.ToLower(cn)
		}
	}
	return fmt.Sprintf("entry-%d", index)
}
