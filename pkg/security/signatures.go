package security

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/digitorus/pkcs7"
)

var (
	ErrEmptyChain     = errors.New("security: certificate chain is empty")
	ErrUnsupportedKey = errors.New("security: unsupported private key type")
)

// EnvelopeInfo describes the signer of a parsed CMS envelope.
type EnvelopeInfo struct {
	Signer       *x509.Certificate
	Certificates []*x509.Certificate
}

// SignDetached produces a detached CMS SignedData envelope over content,
// signed with SHA-256 and RSA. chain[0] is the signer certificate; the whole
// chain is stored in the envelope.
func (p *Provider) SignDetached(content []byte, key crypto.PrivateKey, chain []*x509.Certificate) ([]byte, error) {
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}
	if _, ok := key.(*rsa.PrivateKey); !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("security: init signed data: %w", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSignerChain(chain[0], key, chain[1:], pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("security: add signer: %w", err)
	}
	sd.Detach()

	envelope, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return envelope, nil
}

// VerifyDetached checks a detached envelope against the content it signs.
// Only the digest and signature are checked, not the certificate path.
func (p *Provider) VerifyDetached(envelope, content []byte) (*EnvelopeInfo, error) {
	p7, err := pkcs7.Parse(envelope)
	if err != nil {
		return nil, fmt.Errorf("security: parse envelope: %w", err)
	}
	p7.Content = content
	if err := p7.Verify(); err != nil {
		return nil, fmt.Errorf("security: verify envelope: %w", err)
	}
	return &EnvelopeInfo{
		Signer:       p7.GetOnlySigner(),
		Certificates: p7.Certificates,
	}, nil
}
