package cos

import (
	"context"
	"encoding/xml"
	"hash/crc64"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Name        string   `xml:"Name"`
	Prefix      string   `xml:"Prefix"`
	MaxKeys     int      `xml:"MaxKeys"`
	IsTruncated bool     `xml:"IsTruncated"`
	NextMarker  string   `xml:"NextMarker,omitempty"`
	Contents    []struct {
		Key string `xml:"Key"`
	} `xml:"Contents"`
}

// fakeBucket speaks just enough of the COS object API for Put/Get/List.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("x-cos-hash-crc64ecma", checksum(body))
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && key != "":
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`)
			return
		}
		w.Header().Set("x-cos-hash-crc64ecma", checksum(body))
		w.Write(body)
	case r.Method == http.MethodGet:
		f.list(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeBucket) list(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	marker := r.URL.Query().Get("marker")

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > marker {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	res := listResult{Name: "bucket", Prefix: prefix, MaxKeys: f.pageSize}
	if len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		res.IsTruncated = true
		res.NextMarker = keys[len(keys)-1]
	}
	for _, k := range keys {
		res.Contents = append(res.Contents, struct {
			Key string `xml:"Key"`
		}{Key: k})
	}
	w.Header().Set("Content-Type", "application/xml")
	xml.NewEncoder(w).Encode(res)
}

func checksum(b []byte) string {
	return strconv.FormatUint(crc64.Checksum(b, crc64.MakeTable(crc64.ECMA)), 10)
}

func newTestStorage(t *testing.T, pageSize int) *Storage {
	t.Helper()
	srv := httptest.NewServer(&fakeBucket{objects: map[string][]byte{}, pageSize: pageSize})
	t.Cleanup(srv.Close)

	s, err := NewStorage(StorageConfig{BucketURL: srv.URL, SecretID: "id", SecretKey: "key"})
	require.NoError(t, err)
	return s
}

func TestPutGetOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, 1000)

	require.NoError(t, s.Put(ctx, "video/analyzed_frame.jpg", []byte("first"), "image/jpeg"))
	require.NoError(t, s.Put(ctx, "video/analyzed_frame.jpg", []byte("second"), "image/jpeg"))

	got, err := s.Get(ctx, "video/analyzed_frame.jpg")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestGetMissingIsPersistenceError(t *testing.T) {
	_, err := newTestStorage(t, 1000).Get(context.Background(), "nope.jpg")
	assert.ErrorIs(t, err, entity.ErrPersistence)
}

func TestListFollowsMarkers(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, 2)

	for _, k := range []string{"video/frame_0.jpg", "video/frame_150.jpg", "video/frame_300.jpg", "video.mp4", "other/frame_0.jpg"} {
		require.NoError(t, s.Put(ctx, k, []byte(k), "image/jpeg"))
	}

	keys, err := s.List(ctx, "video/")
	require.NoError(t, err)
	assert.Equal(t, []string{"video/frame_0.jpg", "video/frame_150.jpg", "video/frame_300.jpg"}, keys)
}

func TestNewStorageRejectsRelativeURL(t *testing.T) {
	_, err := NewStorage(StorageConfig{BucketURL: "bucket-only"})
	assert.Error(t, err)
}
