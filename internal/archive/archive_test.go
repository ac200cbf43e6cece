package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractZip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "tool.zip")
	f, err := os.Create(src)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	hdr := &zip.FileHeader{Name: "terraform", Method: zip.Deflate}
	hdr.SetMode(0o755)
	w, err := zw.CreateHeader(hdr)
	require.NoError(t, err)
	_, err = w.Write([]byte("#!/bin/sh\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dest := t.TempDir()
	require.NoError(t, ExtractZip(src, dest))

	info, err := os.Stat(filepath.Join(dest, "terraform"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestExtractZip_RejectsTraversal(t *testing.T) {
	src := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(src)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("../escape")
	require.NoError(t, err)
	_, _ = w.Write([]byte("x"))
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	err = ExtractZip(src, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes destination")
}

func TestExtractZip_NotAZip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(src, []byte("not a zip"), 0o644))
	assert.Error(t, ExtractZip(src, t.TempDir()))
}

func TestExtractTarGz(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeXGlobalHeader, Name: "pax_global_header", PAXRecords: map[string]string{"comment": "abc"}}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: "acme-infra-abc1234/", Mode: 0o755}))
	body := []byte("terraform {}\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: "acme-infra-abc1234/main.tf", Mode: 0o644, Size: int64(len(body))}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dest := t.TempDir()
	require.NoError(t, ExtractTarGz(&buf, dest))

	got, err := os.ReadFile(filepath.Join(dest, "acme-infra-abc1234", "main.tf"))
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestExtractTarGz_NotGzip(t *testing.T) {
	assert.Error(t, ExtractTarGz(bytes.NewReader([]byte("plain")), t.TempDir()))
}
