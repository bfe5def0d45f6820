package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store BlobStore) {
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "documents/a/original/contract.pdf", []byte("%PDF-1.4"), "application/pdf"))
	data, err := store.Get(ctx, "documents/a/original/contract.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	require.NoError(t, store.Put(ctx, "documents/a/original/contract.pdf", []byte("%PDF-1.7"), "application/pdf"))
	data, err = store.Get(ctx, "documents/a/original/contract.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), data)

	_, err = store.Get(ctx, "documents/missing.pdf")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	require.NoError(t, store.Delete(ctx, "documents/a/original/contract.pdf"))
	_, err = store.Get(ctx, "documents/a/original/contract.pdf")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, store)

	err = store.Put(context.Background(), "../escape.pdf", []byte("x"), "")
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if *in.Bucket != "esign-documents" {
		return nil, errors.New("unexpected bucket")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	return &manager.UploadOutput{}, nil
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	exerciseStore(t, &S3Store{bucket: "esign-documents", client: fake, uploader: fake})
}
