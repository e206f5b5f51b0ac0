package artifact

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	at := time.UnixMilli(1718000000123)

	tests := []struct {
		name     string
		userID   string
		email    string
		expected string
	}{
		{name: "with user", userID: "user-42", email: "Ana@Bakery.com", expected: "user-42/1718000000123_ana_at_bakery.com.mp3"},
		{name: "anonymous", userID: "", email: "ana@bakery.com", expected: "anonymous/1718000000123_ana_at_bakery.com.mp3"},
		{name: "unsafe characters", userID: "../etc", email: "ana+test/x@b.co", expected: "etc/1718000000123_ana_test_x_at_b.co.mp3"},
		{name: "empty email", userID: "u1", email: "", expected: "u1/1718000000123_contact.mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ObjectKey(tt.userID, tt.email, at))
		})
	}
}

type fakeObjectAPI struct {
	objects   map[string][]byte
	statErr   error
	putErr    error
	buckets   map[string]bool
	lastPut   minio.PutObjectOptions
	putBucket string
}

func newFakeObjectAPI() *fakeObjectAPI {
	return &fakeObjectAPI{objects: map[string][]byte{}, buckets: map[string]bool{}}
}

func (f *fakeObjectAPI) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjectAPI) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjectAPI) StatObject(_ context.Context, _, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if f.statErr != nil {
		return minio.ObjectInfo{}, f.statErr
	}
	if data, ok := f.objects[key]; ok {
		return minio.ObjectInfo{Key: key, Size: int64(len(data))}, nil
	}
	return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
}

func (f *fakeObjectAPI) PutObject(_ context.Context, bucket, key string, reader io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[key] = data
	f.lastPut = opts
	f.putBucket = bucket
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func newTestStore(api objectAPI) *MinioStore {
	cfg := newConfig(
		WithEndpoint("localhost:9000"),
		WithBucket("audio"),
		WithPublicBaseURL("https://cdn.example.com/"),
	)
	return newMinioStore(api, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMinioStore_Put(t *testing.T) {
	api := newFakeObjectAPI()
	store := newTestStore(api)

	obj, err := store.Put(context.Background(), "u1/1_ana.mp3", []byte("audio"), "audio/mpeg")
	require.NoError(t, err)

	assert.Equal(t, "u1/1_ana.mp3", obj.Key)
	assert.Equal(t, "https://cdn.example.com/audio/u1/1_ana.mp3", obj.URL)
	assert.Equal(t, int64(5), obj.Size)
	assert.Equal(t, "audio", api.putBucket)
	assert.Equal(t, "audio/mpeg", api.lastPut.ContentType)
}

func TestMinioStore_PutNeverOverwrites(t *testing.T) {
	api := newFakeObjectAPI()
	api.objects["u1/1_ana.mp3"] = []byte("first")
	store := newTestStore(api)

	obj, err := store.Put(context.Background(), "u1/1_ana.mp3", []byte("second"), "audio/mpeg")
	require.NoError(t, err)

	assert.NotEqual(t, "u1/1_ana.mp3", obj.Key)
	assert.True(t, strings.HasPrefix(obj.Key, "u1/1_ana_"))
	assert.True(t, strings.HasSuffix(obj.Key, ".mp3"))
	assert.Equal(t, []byte("first"), api.objects["u1/1_ana.mp3"])
	assert.Equal(t, []byte("second"), api.objects[obj.Key])
}

func TestMinioStore_PutErrors(t *testing.T) {
	t.Run("stat failure", func(t *testing.T) {
		api := newFakeObjectAPI()
		api.statErr = minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}

		_, err := newTestStore(api).Put(context.Background(), "k.mp3", []byte("a"), "audio/mpeg")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrStorage))
	})

	t.Run("put failure", func(t *testing.T) {
		api := newFakeObjectAPI()
		api.putErr = errors.New("connection reset")

		_, err := newTestStore(api).Put(context.Background(), "k.mp3", []byte("a"), "audio/mpeg")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrStorage))
	})
}

func TestMinioStore_EnsureBucket(t *testing.T) {
	api := newFakeObjectAPI()
	store := newTestStore(api)

	require.NoError(t, store.EnsureBucket(context.Background()))
	assert.True(t, api.buckets["audio"])
	require.NoError(t, store.EnsureBucket(context.Background()))
}

func TestPublicURL_DefaultsToEndpoint(t *testing.T) {
	cfg := newConfig(WithEndpoint("s3.local:9000"), WithBucket("audio"), WithSSL(true))
	store := newMinioStore(newFakeObjectAPI(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, "https://s3.local:9000/audio/a/b.mp3", store.PublicURL("a/b.mp3"))
}
