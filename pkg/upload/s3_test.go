package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mufat/mufat/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	sub, err := SubKey("2024-03-09,14-05-06")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09_14_05", sub)

	_, err = SubKey("yesterday")
	require.Error(t, err)

	started := time.Date(2024, 3, 9, 14, 7, 30, 0, time.Local)
	assert.Equal(t, "MAC-MINI-7/2024-03-09_14_05/(20240309140730)save_hd_Log.txt",
		LogKey("mac-mini-7", sub, started, "save_hd"))
	assert.Equal(t, "MAC-MINI-7/2024-03-09_14_05/save_hd.txt", SummaryKey("mac-mini-7", sub, "save_hd"))
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{name: "default base", base: "", want: "https://mufat.s3.amazonaws.com/HOST/a.txt"},
		{name: "custom base", base: "https://cdn.example.com/fat", want: "https://cdn.example.com/fat/HOST/a.txt"},
		{name: "trailing slash stripped", base: "https://cdn.example.com/", want: "https://cdn.example.com/HOST/a.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &s3Uploader{cfg: &config.S3UploadConfig{PublicURL: tt.base}}
			assert.Equal(t, tt.want, u.publicURL("HOST/a.txt"))
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{name: "json file", path: "results/config.json", wantPrefix: "application/json"},
		{name: "no extension", path: "results/Makefile", wantPrefix: "application/octet-stream"},
		{name: "txt file", path: "HOST/sub/(20240309140730)run_Log.txt", wantPrefix: "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, detectContentType(tt.path), tt.wantPrefix)
		})
	}
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(logrus.New(), &config.S3UploadConfig{})
	require.Error(t, err)

	_, err = NewS3Uploader(logrus.New(), nil)
	require.Error(t, err)
}

type recordedPut struct {
	path string
	acl  string
	body string
}

func fakeS3(t *testing.T) (*httptest.Server, func() []recordedPut) {
	t.Helper()

	var (
		mu   sync.Mutex
		puts []recordedPut
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		if r.Method == http.MethodPut {
			mu.Lock()
			puts = append(puts, recordedPut{path: r.URL.Path, acl: r.Header.Get("X-Amz-Acl"), body: string(body)})
			mu.Unlock()
		}

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recordedPut {
		mu.Lock()
		defer mu.Unlock()

		return append([]recordedPut(nil), puts...)
	}
}

func TestS3Uploader_UploadFile(t *testing.T) {
	srv, puts := fakeS3(t)

	log := logrus.New()
	log.SetOutput(io.Discard)

	u, err := NewS3Uploader(log, &config.S3UploadConfig{
		Enabled:         true,
		EndpointURL:     srv.URL,
		Bucket:          "mufat",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		ForcePathStyle:  true,
		PublicURL:       "https://mufat.s3.amazonaws.com",
	})
	require.NoError(t, err)

	require.NoError(t, u.Preflight(context.Background()))

	local := filepath.Join(t.TempDir(), "run_Log.txt")
	require.NoError(t, os.WriteFile(local, []byte("2024-03-09 14:05:06.000 Init ASSERT FAILED: boom\n"), 0o644))

	url, err := u.UploadFile(context.Background(), local, "HOST/2024-03-09_14_05/(20240309140506)run_Log.txt")
	require.NoError(t, err)
	assert.Equal(t, "https://mufat.s3.amazonaws.com/HOST/2024-03-09_14_05/(20240309140506)run_Log.txt", url)

	got := puts()
	require.Len(t, got, 2)
	assert.Equal(t, "/mufat/.mufat-write-test", got[0].path)
	assert.Equal(t, "/mufat/HOST/2024-03-09_14_05/(20240309140506)run_Log.txt", got[1].path)
	assert.Equal(t, DefaultACL, got[1].acl)
	assert.Contains(t, got[1].body, "ASSERT FAILED: boom")
}

func TestS3Uploader_UploadMissingFile(t *testing.T) {
	u, err := NewS3Uploader(logrus.New(), &config.S3UploadConfig{Bucket: "mufat"})
	require.NoError(t, err)

	_, err = u.UploadFile(context.Background(), filepath.Join(t.TempDir(), "gone.txt"), "k")
	require.Error(t, err)
}
