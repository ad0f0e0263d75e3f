package repository

import (
	"bytes"
	"context"
	"io"
	"path"
	"strconv"
	"strings"

	"ojengine/internal/common/storage"
	appErr "ojengine/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const diagnosticObjectName = "diagnostic.txt.zst"

// DiagnosticArchive keeps the untruncated diagnostic of a failed submission.
type DiagnosticArchive interface {
	SaveDiagnostic(ctx context.Context, submissionID int64, diagnostic string) (string, error)
}

// ArtifactStore writes zstd-compressed diagnostics to object storage.
type ArtifactStore struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
}

// NewArtifactStore creates a store writing under bucket/prefix.
func NewArtifactStore(objectStorage storage.ObjectStorage, bucket, prefix string) *ArtifactStore {
	return &ArtifactStore{
		storage: objectStorage,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
	}
}

// ObjectKey returns <prefix>/<submission_id>/diagnostic.txt.zst.
func (s *ArtifactStore) ObjectKey(submissionID int64) string {
	return path.Join(s.prefix, strconv.FormatInt(submissionID, 10), diagnosticObjectName)
}

// SaveDiagnostic compresses and uploads diagnostic, returning the object key.
func (s *ArtifactStore) SaveDiagnostic(ctx context.Context, submissionID int64, diagnostic string) (string, error) {
	if s == nil || s.storage == nil {
		return "", appErr.New(appErr.ServiceUnavailable).WithMessage("artifact storage is not configured")
	}
	if submissionID <= 0 {
		return "", appErr.ValidationError("submission_id", "required")
	}
	data, err := compress([]byte(diagnostic))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ArtifactUploadFailed, "compress diagnostic failed")
	}
	key := s.ObjectKey(submissionID)
	err = s.storage.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType:     "text/plain; charset=utf-8",
		ContentEncoding: "zstd",
		Metadata:        map[string]string{"submission-id": strconv.FormatInt(submissionID, 10)},
	})
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ArtifactUploadFailed, "upload diagnostic of submission %d failed", submissionID)
	}
	return key, nil
}

// LoadDiagnostic downloads and decompresses an archived diagnostic.
func (s *ArtifactStore) LoadDiagnostic(ctx context.Context, submissionID int64) (string, error) {
	if s == nil || s.storage == nil {
		return "", appErr.New(appErr.ServiceUnavailable).WithMessage("artifact storage is not configured")
	}
	reader, err := s.storage.GetObject(ctx, s.bucket, s.ObjectKey(submissionID))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.NotFound, "diagnostic of submission %d not found", submissionID)
	}
	defer reader.Close()

	dec, err := zstd.NewReader(reader)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "open zstd stream failed")
	}
	defer dec.Close()
	out, err := io.ReadAll(dec)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "decompress diagnostic failed")
	}
	return string(out), nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
