//go:build cgo

package embeddings

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestONNXPlatform(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
	}{
		{"linux", "amd64", "linux-x64"},
		{"linux", "arm64", "linux-aarch64"},
		{"darwin", "amd64", "osx-x86_64"},
		{"darwin", "arm64", "osx-arm64"},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := onnxPlatform(tt.goos, tt.goarch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := onnxPlatform("windows", "amd64")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestONNXLibraryName(t *testing.T) {
	assert.Equal(t, "libonnxruntime.so", onnxLibraryName("linux"))
	assert.Equal(t, "libonnxruntime.dylib", onnxLibraryName("darwin"))
}

func TestGetONNXLibraryPath_Env(t *testing.T) {
	t.Setenv("ONNX_PATH", "/opt/onnx/libonnxruntime.so")
	assert.Equal(t, "/opt/onnx/libonnxruntime.so", GetONNXLibraryPath())
}

func TestGetONNXLibraryPath_Managed(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ONNX_PATH", "")
	assert.Equal(t, "", GetONNXLibraryPath())

	dir := filepath.Join(home, ".config", "vectorizer", "lib")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	lib := filepath.Join(dir, onnxLibraryName(runtime.GOOS))
	require.NoError(t, os.WriteFile(lib, []byte("elf"), 0o644))
	assert.Equal(t, lib, GetONNXLibraryPath())
}

type tarEntry struct {
	name, link, body string
}

func tgz(t *testing.T, entries []tarEntry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.link != "" {
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.link
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.link == "" {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return &buf
}

func TestExtractLibs(t *testing.T) {
	const prefix = "onnxruntime-linux-x64-1.23.0/lib/"
	dest := t.TempDir()
	archive := tgz(t, []tarEntry{
		{name: "onnxruntime-linux-x64-1.23.0/README.md", body: "readme"},
		{name: "./" + prefix + "libonnxruntime.so.1.23.0", body: "lib"},
		{name: prefix + "libonnxruntime.so", link: "libonnxruntime.so.1.23.0"},
	})

	require.NoError(t, extractLibs(archive, prefix, dest, "libonnxruntime.so"))

	data, err := os.ReadFile(filepath.Join(dest, "libonnxruntime.so"))
	require.NoError(t, err)
	assert.Equal(t, "lib", string(data))
	_, err = os.Stat(filepath.Join(dest, "README.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractLibs_Missing(t *testing.T) {
	archive := tgz(t, []tarEntry{{name: "other/lib/libfoo.so", body: "x"}})
	err := extractLibs(archive, "onnxruntime/lib/", t.TempDir(), "libonnxruntime.so")
	assert.ErrorContains(t, err, "not found in archive")

	err = extractLibs(bytes.NewBufferString("not gzip"), "x/", t.TempDir(), "libonnxruntime.so")
	assert.ErrorContains(t, err, "gzip")
}
