// Package reliability archives experiment results to object storage.
package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// MetadataFile is the name of the manifest inside every archive.
const MetadataFile = "archive-metadata.json"

// Uploader is the part of manager.Uploader the archive uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// NewS3Uploader returns a multipart-capable uploader for client.
func NewS3Uploader(client *s3.Client) *manager.Uploader {
	return manager.NewUploader(client)
}

// ArchiveMetadata describes the contents of one results archive
type ArchiveMetadata struct {
	Timestamp time.Time      `json:"timestamp"`
	Label     string         `json:"label"`
	Files     []FileMetadata `json:"files"`
}

// FileMetadata describes a single file in the archive
type FileMetadata struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// ResultsArchive packs a results directory into a tar.gz and uploads it
type ResultsArchive struct {
	uploader Uploader
	bucket   string
	prefix   string
	now      func() time.Time
	log      zerolog.Logger
}

// NewResultsArchive creates an archive uploading to bucket under prefix
func NewResultsArchive(uploader Uploader, bucket, prefix string, log zerolog.Logger) *ResultsArchive {
	return &ResultsArchive{
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		now:      time.Now,
		log:      log.With().Str("service", "results_archive").Logger(),
	}
}

// Archive uploads every regular file in dir as <prefix>/<label>-<timestamp>.tar.gz
// and returns the object key.
func (a *ResultsArchive) Archive(ctx context.Context, dir, label string) (string, error) {
	startTime := time.Now()
	timestamp := a.now().UTC()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read results directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	metadata := ArchiveMetadata{Timestamp: timestamp, Label: label, Files: make([]FileMetadata, 0, len(names))}
	for _, name := range names {
		fm, err := describeFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("failed to describe %s: %w", name, err)
		}
		metadata.Files = append(metadata.Files, fm)
	}

	var buf bytes.Buffer
	if err := createArchive(&buf, dir, names, metadata); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	size := buf.Len()

	key := path.Join(a.prefix, fmt.Sprintf("%s-%s.tar.gz", label, timestamp.Format("2006-01-02-150405")))
	if _, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        &buf,
		ContentType: aws.String("application/gzip"),
	}); err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	a.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("key", key).
		Int("files", len(names)).
		Int("size_bytes", size).
		Msg("Results archived")
	return key, nil
}

func describeFile(filePath string) (FileMetadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return FileMetadata{}, err
	}
	defer file.Close()

	hash := sha256.New()
	n, err := io.Copy(hash, file)
	if err != nil {
		return FileMetadata{}, err
	}
	return FileMetadata{
		Filename:  filepath.Base(filePath),
		SizeBytes: n,
		Checksum:  fmt.Sprintf("sha256:%x", hash.Sum(nil)),
	}, nil
}

// createArchive writes a tar.gz of names from sourceDir plus the metadata manifest
func createArchive(w io.Writer, sourceDir string, names []string, metadata ArchiveMetadata) error {
	gzipWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzipWriter)

	manifest, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}
	if err := tarWriter.WriteHeader(&tar.Header{
		Name:    MetadataFile,
		Size:    int64(len(manifest)),
		Mode:    0644,
		ModTime: metadata.Timestamp,
	}); err != nil {
		return err
	}
	if _, err := tarWriter.Write(manifest); err != nil {
		return err
	}

	for _, name := range names {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzipWriter.Close()
}

// addFileToArchive adds a single file to a tar archive
func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}
