package store

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory S3Client.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var contents []types.Object
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(params.Prefix)) {
			contents = append(contents, types.Object{Key: aws.String(key)})
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func (f *fakeS3) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func TestS3RoundTrip(t *testing.T) {
	client := newFakeS3()
	store := NewS3(client, "portal-cache", "caselist/", time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", testPage(42)))

	page, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, page.Pagination.Total)
	assert.Equal(t, "c1", page.Rows[0].ID)
}

func TestS3Miss(t *testing.T) {
	store := NewS3(newFakeS3(), "portal-cache", "caselist/", time.Minute)

	_, ok, err := store.Get(context.Background(), "never-stored")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3TTLExpiry(t *testing.T) {
	client := newFakeS3()
	store := NewS3(client, "portal-cache", "caselist/", time.Minute)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "k", testPage(1)))

	now = now.Add(2 * time.Minute)
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// The stale object was deleted by the read that observed it.
	assert.Zero(t, client.len())
}

func TestS3Clear(t *testing.T) {
	client := newFakeS3()
	store := NewS3(client, "portal-cache", "caselist/", time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", testPage(1)))
	require.NoError(t, store.Put(ctx, "b", testPage(2)))
	require.Equal(t, 2, client.len())

	require.NoError(t, store.Clear(ctx))
	assert.Zero(t, client.len())
}

func TestS3ObjectKeysStayUnderPrefix(t *testing.T) {
	client := newFakeS3()
	store := NewS3(client, "portal-cache", "caselist/", time.Minute)

	require.NoError(t, store.Put(context.Background(), "p=1&ps=20&q=a b&cat=&st=", testPage(1)))

	client.mu.Lock()
	defer client.mu.Unlock()
	for key := range client.objects {
		assert.True(t, strings.HasPrefix(key, "caselist/"))
		assert.NotContains(t, key, "&", "query keys are hashed into object names")
		assert.NotContains(t, key, " ")
	}
}
