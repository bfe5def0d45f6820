package security

import (
	"crypto"
	"crypto/x509"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

// Provider carries the cryptographic primitives used by the certificate
// extractor and the PDF signing engine. Callers construct one and pass it
// explicitly; nothing is registered process-wide.
type Provider struct {
	clock func() time.Time
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithClock overrides the time source used for signing timestamps and
// validity checks.
func WithClock(clock func() time.Time) ProviderOption {
	return func(p *Provider) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewProvider creates a provider backed by PKCS#12 and CMS implementations.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{clock: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Now returns the provider's current time.
func (p *Provider) Now() time.Time {
	return p.clock()
}

// DecodeContainer decodes a password-protected PKCS#12 container into its
// private key, leaf certificate and remaining chain.
func (p *Provider) DecodeContainer(data []byte, passphrase string) (crypto.PrivateKey, *x509.Certificate, []*x509.Certificate, error) {
	key, cert, caCerts, err := pkcs12.DecodeChain(data, passphrase)
	if err != nil {
		return nil, nil, nil, err
	}
	return key, cert, caCerts, nil
}

// DecodeTrustStore decodes a PKCS#12 container that only holds certificates.
func (p *Provider) DecodeTrustStore(data []byte, passphrase string) ([]*x509.Certificate, error) {
	return pkcs12.DecodeTrustStore(data, passphrase)
}
