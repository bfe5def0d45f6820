package documents

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"esign-portal/esign-backend/pkg/storage"
)

// StorageProvider lays out document bytes in a blob store.
type StorageProvider struct {
	blobs storage.BlobStore
}

func NewStorageProvider(blobs storage.BlobStore) *StorageProvider {
	return &StorageProvider{blobs: blobs}
}

func (p *StorageProvider) PutOriginal(ctx context.Context, docID uuid.UUID, fileName string, data []byte) (string, error) {
	key := GenerateKey(docID, "original", sanitizeFileName(fileName))
	return key, p.blobs.Put(ctx, key, data, "application/pdf")
}

// PutSigned stores the output of one signature under its own key, so a
// failed transaction never overwrites the bytes a document points to.
func (p *StorageProvider) PutSigned(ctx context.Context, docID, signatureID uuid.UUID, data []byte) (string, error) {
	key := GenerateKey(docID, "signed", signatureID.String()+".pdf")
	return key, p.blobs.Put(ctx, key, data, "application/pdf")
}

func (p *StorageProvider) PutImage(ctx context.Context, docID, signatureID uuid.UUID, data []byte) (string, error) {
	key := GenerateKey(docID, "images", signatureID.String())
	return key, p.blobs.Put(ctx, key, data, "application/octet-stream")
}

func (p *StorageProvider) Get(ctx context.Context, key string) ([]byte, error) {
	return p.blobs.Get(ctx, key)
}

func (p *StorageProvider) Delete(ctx context.Context, key string) error {
	return p.blobs.Delete(ctx, key)
}

func GenerateKey(docID uuid.UUID, kind, name string) string {
	return fmt.Sprintf("documents/%s/%s/%s", docID, kind, name)
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "document.pdf"
	}
	return name
}
