package reconciliation

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

//go:generate mockgen -source=archive.go -destination=archive_mock.go -package=reconciliation

// Archiver uploads raw statements to durable object storage
type Archiver interface {
	// Archive stores data under objectPath and returns a reference to the stored object
	Archive(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
}

const defaultSourceName = "statement"

// ArchivePath builds {organizationId}/{accountId}/{year}/{month}/{timestamp}-{fileName}
func ArchivePath(key SessionKey, at time.Time, fileName string) string {
	at = at.UTC()
	return fmt.Sprintf("%s/%s/%04d/%02d/%s-%s",
		key.OrganizationID,
		key.AccountID,
		at.Year(),
		int(at.Month()),
		at.Format("20060102T150405.000Z"),
		safeFileName(fileName))
}

func safeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" {
		return defaultSourceName
	}
	return strings.ReplaceAll(name, " ", "_")
}

// contentTypeFor maps a statement format to the MIME type used for its archived copy
func contentTypeFor(fileName string, format string) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".pdf":
		return "application/pdf"
	case ".ofx", ".qfx":
		return "application/x-ofx"
	case ".csv":
		return "text/csv"
	}
	switch format {
	case "pdf":
		return "application/pdf"
	case "ofx":
		return "application/x-ofx"
	case "csv":
		return "text/csv"
	}
	return "text/plain"
}
