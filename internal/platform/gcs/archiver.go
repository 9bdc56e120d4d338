package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	commonErrors "github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
)

// Archiver stores raw statements in a Google Cloud Storage bucket
type Archiver struct {
	bucket string
	logger *zap.Logger
	open   func(ctx context.Context, objectPath, contentType string) io.WriteCloser
}

// NewArchiver creates an archiver writing to the given bucket. Objects are created only if
// they do not exist yet.
func NewArchiver(client *storage.Client, bucket string, logger *zap.Logger) *Archiver {
	return &Archiver{
		bucket: bucket,
		logger: logger,
		open: func(ctx context.Context, objectPath, contentType string) io.WriteCloser {
			w := client.Bucket(bucket).
				Object(objectPath).
				If(storage.Conditions{DoesNotExist: true}).
				NewWriter(ctx)
			w.ContentType = contentType
			return w
		},
	}
}

// Archive uploads data and returns its gs:// reference
func (a *Archiver) Archive(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	w := a.open(ctx, objectPath, contentType)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", a.uploadError(objectPath, err)
	}
	// Close finalizes the upload; its error is the one that reports a failed precondition.
	if err := w.Close(); err != nil {
		return "", a.uploadError(objectPath, err)
	}

	ref := "gs://" + a.bucket + "/" + objectPath
	a.logger.Info("statement archived",
		zap.String("reference", ref),
		zap.Int("bytes", len(data)))
	return ref, nil
}

func (a *Archiver) uploadError(objectPath string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return commonErrors.NewConflictError("archive object already exists").
			WithDetail("objectPath", objectPath)
	}
	a.logger.Error("statement upload failed", zap.String("objectPath", objectPath), zap.Error(err))
	return commonErrors.NewInternalError("failed to upload statement", err).
		WithDetail("bucket", a.bucket).
		WithDetail("objectPath", objectPath)
}
