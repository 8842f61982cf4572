package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// PutOptions conveys upload destination metadata.
type PutOptions struct {
	Bucket      string
	Key         string
	ContentType string
}

// Service stores uploaded images in remote object storage.
type Service interface {
	Put(ctx context.Context, body io.Reader, opts PutOptions) (string, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	DeletePrefix(ctx context.Context, bucket, prefix string) error
}

// UserPrefix is the key prefix under which a user's uploads live.
func UserPrefix(keyPrefix, userID string) string {
	prefix := strings.Trim(keyPrefix, "/")
	if prefix == "" {
		return userID + "/"
	}
	return path.Join(prefix, userID) + "/"
}

// ObjectKey builds "<prefix>/<user>/<file id><ext>".
func ObjectKey(keyPrefix, userID, fileID, ext string) string {
	return UserPrefix(keyPrefix, userID) + fileID + ext
}

// Location renders an s3:// URI for bucket and key.
func Location(bucket, key string) string {
	return "s3://" + bucket + "/" + strings.TrimPrefix(key, "/")
}
