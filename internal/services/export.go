package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/simaland/userapi/types"
)

// ExportPrefix is the key prefix of user snapshots.
const ExportPrefix = "exports/"

// UserLister is the read side of the user store.
type UserLister interface {
	List(ctx context.Context) ([]types.UserView, error)
}

// ObjectStore is the object storage operations used by exports.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// ExportService writes snapshots of the user list to object storage.
type ExportService struct {
	users   UserLister
	objects ObjectStore
	now     func() time.Time
}

func NewExportService(users UserLister, objects ObjectStore) *ExportService {
	return &ExportService{users: users, objects: objects, now: time.Now}
}

// ExportUsers uploads the current user list as JSON and returns its key.
// Password hashes are never part of the snapshot.
func (s *ExportService) ExportUsers(ctx context.Context) (string, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list users: %w", err)
	}

	data, err := json.Marshal(users)
	if err != nil {
		return "", fmt.Errorf("encode users: %w", err)
	}

	if err := s.objects.EnsureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}

	key := fmt.Sprintf("%susers-%d.json", ExportPrefix, s.now().Unix())
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}
	return key, nil
}

// ReadSnapshot copies a previously exported snapshot to w. Keys outside
// ExportPrefix are rejected.
func (s *ExportService) ReadSnapshot(ctx context.Context, key string, w io.Writer) error {
	if !strings.HasPrefix(key, ExportPrefix) {
		return badRequest(fmt.Sprintf("%q is not an export key", key))
	}

	rc, err := s.objects.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("download export: %w", err)
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("read export: %w", err)
	}
	return nil
}
