package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const metaSuffix = ".meta.json"

// FilesystemStore keeps artifacts under a root directory: the payload file
// plus a JSON sidecar holding the Info record.
type FilesystemStore struct {
	root string
}

// NewFilesystem constructs a filesystem store rooted at root (default
// ./blobdata), creating the directory if needed.
func NewFilesystem(root string) (*FilesystemStore, error) {
	if root == "" {
		root = "blobdata"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

// Driver reports DriverFilesystem.
func (s *FilesystemStore) Driver() Driver { return DriverFilesystem }

// Root returns the root directory.
func (s *FilesystemStore) Root() string { return s.root }

func (s *FilesystemStore) paths(key string) (payload, meta string, err error) {
	if key == "" {
		return "", "", fmt.Errorf("blob: empty key")
	}
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", "", fmt.Errorf("blob: key %q escapes root", key)
	}
	payload = filepath.Join(s.root, clean)
	return payload, payload + metaSuffix, nil
}

// Put stores a new immutable object; duplicate keys fail.
func (s *FilesystemStore) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	payloadPath, metaPath, err := s.paths(key)
	if err != nil {
		return Info{}, err
	}
	if _, err := os.Stat(payloadPath); err == nil {
		return Info{}, fmt.Errorf("blob %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(payloadPath), 0o750); err != nil {
		return Info{}, fmt.Errorf("create blob dirs: %w", err)
	}
	f, err := os.OpenFile(payloadPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return Info{}, fmt.Errorf("create blob: %w", err)
	}
	size, err := io.Copy(f, r)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(payloadPath)
		return Info{}, fmt.Errorf("write blob: %w", err)
	}
	info := Info{
		Key:          key,
		Size:         size,
		ContentType:  opts.ContentType,
		Metadata:     copyMeta(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	encoded, err := json.Marshal(info)
	if err != nil {
		_ = os.Remove(payloadPath)
		return Info{}, fmt.Errorf("encode meta: %w", err)
	}
	if err := os.WriteFile(metaPath, encoded, 0o640); err != nil {
		_ = os.Remove(payloadPath)
		return Info{}, fmt.Errorf("write meta: %w", err)
	}
	return info, nil
}

func (s *FilesystemStore) readInfo(metaPath, key string) (Info, error) {
	encoded, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Info{}, fmt.Errorf("read meta: %w", err)
	}
	var info Info
	if err := json.Unmarshal(encoded, &info); err != nil {
		return Info{}, fmt.Errorf("decode meta: %w", err)
	}
	return info, nil
}

// Get returns the artifact metadata and a reader over the payload.
func (s *FilesystemStore) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	payloadPath, metaPath, err := s.paths(key)
	if err != nil {
		return Info{}, nil, err
	}
	info, err := s.readInfo(metaPath, key)
	if err != nil {
		return Info{}, nil, err
	}
	f, err := os.Open(payloadPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Info{}, nil, fmt.Errorf("open blob: %w", err)
	}
	return info, f, nil
}

// Head returns the artifact metadata.
func (s *FilesystemStore) Head(_ context.Context, key string) (Info, error) {
	_, metaPath, err := s.paths(key)
	if err != nil {
		return Info{}, err
	}
	return s.readInfo(metaPath, key)
}

// Delete removes the object; returns whether it existed.
func (s *FilesystemStore) Delete(_ context.Context, key string) (bool, error) {
	payloadPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(payloadPath); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.Remove(payloadPath); err != nil {
		return false, fmt.Errorf("remove blob: %w", err)
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List walks the root and returns metadata for keys with the prefix, sorted
// by key.
func (s *FilesystemStore) List(_ context.Context, prefix string) ([]Info, error) {
	var infos []Info
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, metaSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := s.readInfo(path, key)
		if err != nil {
			return err
		}
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL is not supported by the filesystem backend.
func (s *FilesystemStore) PresignURL(context.Context, string, SignedURLOptions) (string, error) {
	return "", ErrUnsupported
}

var _ Store = (*FilesystemStore)(nil)
