package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	bucket, key string
	body        []byte
	err         error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket, f.key = *input.Bucket, *input.Key
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &manager.UploadOutput{}, nil
}

func untar(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	files := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[hdr.Name] = content
	}
	return files
}

func TestResultsArchive_Archive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counts_0.json"), []byte(`{"00": 10}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counts_1.json"), []byte(`{"01": 10}`), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	up := &fakeUploader{}
	a := NewResultsArchive(up, "results-bucket", "qlbm", zerolog.Nop())
	a.now = func() time.Time { return time.Date(2026, 1, 8, 14, 30, 22, 0, time.UTC) }

	key, err := a.Archive(context.Background(), dir, "rem-collisionless-4x2-ibm-qpu")
	require.NoError(t, err)
	assert.Equal(t, "qlbm/rem-collisionless-4x2-ibm-qpu-2026-01-08-143022.tar.gz", key)
	assert.Equal(t, "results-bucket", up.bucket)
	assert.Equal(t, key, up.key)

	files := untar(t, up.body)
	require.Len(t, files, 3)
	assert.Equal(t, `{"00": 10}`, string(files["counts_0.json"]))

	var meta ArchiveMetadata
	require.NoError(t, json.Unmarshal(files[MetadataFile], &meta))
	assert.Equal(t, "rem-collisionless-4x2-ibm-qpu", meta.Label)
	require.Len(t, meta.Files, 2)
	assert.Equal(t, "counts_0.json", meta.Files[0].Filename)
	assert.Equal(t, int64(10), meta.Files[0].SizeBytes)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, meta.Files[0].Checksum)
}

func TestResultsArchive_UploadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counts_0.json"), []byte(`{}`), 0644))

	uploadErr := errors.New("access denied")
	a := NewResultsArchive(&fakeUploader{err: uploadErr}, "b", "", zerolog.Nop())
	_, err := a.Archive(context.Background(), dir, "raw")
	assert.ErrorIs(t, err, uploadErr)
}

func TestResultsArchive_MissingDirectory(t *testing.T) {
	a := NewResultsArchive(&fakeUploader{}, "b", "", zerolog.Nop())
	_, err := a.Archive(context.Background(), filepath.Join(t.TempDir(), "missing"), "raw")
	assert.Error(t, err)
}
