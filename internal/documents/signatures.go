package documents

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"esign-portal/esign-backend/pkg/pdf"
	"esign-portal/esign-backend/pkg/security"
)

// SignedOutput is what a strategy produced for one signature.
type SignedOutput struct {
	PDF         []byte
	Envelope    []byte
	Reason      string
	Certificate *security.CertificateMetadata
	Metadata    datatypes.JSON
}

// SigningStrategy applies one kind of signature to a document.
type SigningStrategy interface {
	Sign(pdfBytes []byte, signerName string, materials SigningMaterials, placement Placement) (*SignedOutput, error)
}

// SignatureService picks the strategy for a signature kind.
type SignatureService struct {
	strategies map[SignatureKind]SigningStrategy
}

func NewSignatureService(engine *pdf.Engine, extractor *security.CertificateExtractor, provider *security.Provider) *SignatureService {
	return &SignatureService{
		strategies: map[SignatureKind]SigningStrategy{
			KindSimple:    &visualStrategy{engine: engine},
			KindAdvanced:  &certificateStrategy{engine: engine, extractor: extractor, provider: provider},
			KindQualified: &certificateStrategy{engine: engine, extractor: extractor, provider: provider, qualified: true},
		},
	}
}

func (s *SignatureService) Strategy(kind SignatureKind) (SigningStrategy, error) {
	strategy, ok := s.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSignatureKind, kind)
	}
	return strategy, nil
}

type visualStrategy struct {
	engine *pdf.Engine
}

func (v *visualStrategy) Sign(pdfBytes []byte, _ string, materials SigningMaterials, placement Placement) (*SignedOutput, error) {
	if len(materials.Image) == 0 {
		return nil, fmt.Errorf("%w: signature image is required", ErrMissingSignatureMaterial)
	}
	out, err := v.engine.ApplyVisualSignature(pdfBytes, materials.Image, placement.Page, placement.rect())
	if err != nil {
		return nil, err
	}
	return &SignedOutput{
		PDF:      out,
		Metadata: jsonMetadata(map[string]any{"image_size": len(materials.Image)}),
	}, nil
}

type certificateStrategy struct {
	engine    *pdf.Engine
	extractor *security.CertificateExtractor
	provider  *security.Provider
	qualified bool
}

func (c *certificateStrategy) Sign(pdfBytes []byte, signerName string, materials SigningMaterials, placement Placement) (*SignedOutput, error) {
	if len(materials.Certificate) == 0 {
		return nil, fmt.Errorf("%w: certificate container is required", ErrMissingSignatureMaterial)
	}

	identity, err := c.extractor.Load(materials.Certificate, materials.Passphrase)
	if err != nil {
		return nil, err
	}
	alias, err := c.extractor.SelectSigningEntry(identity)
	if err != nil {
		return nil, err
	}
	meta, err := c.extractor.ExtractMetadata(identity, alias)
	if err != nil {
		return nil, err
	}
	entry, _ := identity.Entry(alias)

	req := pdf.SignatureRequest{
		Key:        entry.PrivateKey,
		Chain:      entry.Chain,
		SignerName: signerName,
		Qualified:  c.qualified,
		Page:       placement.Page,
	}
	if placement.X >= 0 && placement.Y >= 0 {
		rect := placement.rect()
		req.Stamp = &rect
	}

	signed, err := c.engine.ApplyCryptographicSignature(pdfBytes, req)
	if err != nil {
		return nil, err
	}

	return &SignedOutput{
		PDF:         signed.PDF,
		Envelope:    signed.Envelope,
		Reason:      req.Reason(),
		Certificate: meta,
		Metadata: jsonMetadata(map[string]any{
			"alias":                        alias,
			"byte_range":                   signed.ByteRange,
			"chain_length":                 len(entry.Chain),
			"certificate_valid_at_signing": meta.ValidAt(c.provider.Now()),
		}),
	}, nil
}

func jsonMetadata(v map[string]any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}
