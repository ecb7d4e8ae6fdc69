package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ignite/intake-extractor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsBackend(t *testing.T) {
	fs, err := New(context.Background(), config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "local", fs.Backend())

	_, err = New(context.Background(), config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.StorageConfig{Type: "aws"})
	assert.ErrorContains(t, err, "bucket")
}

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	n, err := s.Save(ctx, "job-1.csv", strings.NewReader("nome\nAna\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.FileExists(t, filepath.Join(dir, "job-1.csv"))

	rc, err := s.Open(ctx, "job-1.csv")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "nome\nAna\n", string(data))

	require.NoError(t, s.Remove(ctx, "job-1.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "job-1.csv"))
	require.NoError(t, s.Remove(ctx, "job-1.csv"), "removing twice is fine")

	_, err = s.Open(ctx, "job-1.csv")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Check(ctx))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Save(context.Background(), "../escape.csv", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = s.Save(context.Background(), "", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestLocalStoreCheckMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, s.Check(context.Background()))
}

type fakeS3 struct {
	objects map[string][]byte
	headErr error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestS3StoreRoundTrip(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := newS3Store(fake, "intake", "uploads/")
	ctx := context.Background()

	n, err := s.Save(ctx, "job-1.xlsx", bytes.NewReader([]byte("PK\x03\x04")))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Contains(t, fake.objects, "uploads/job-1.xlsx")

	rc, err := s.Open(ctx, "job-1.xlsx")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "PK\x03\x04", string(data))

	require.NoError(t, s.Remove(ctx, "job-1.xlsx"))
	_, err = s.Open(ctx, "job-1.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3StoreCheck(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := newS3Store(fake, "intake", "")
	assert.NoError(t, s.Check(context.Background()))

	fake.headErr = errors.New("forbidden")
	assert.ErrorContains(t, s.Check(context.Background()), "forbidden")
}
