package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wheelhub/wheelhub/internal/index"
)

// NewFSBackend builds a filesystem-backed object store rooted at basePath.
// One instance is shared by the whole process.
func NewFSBackend(basePath string, keys KeyResolver, version func(name, filename string) string) (Backend, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fsBackend{
		basePath: abs,
		keys:     keys,
		version:  version,
		locks:    make(map[string]*keyLock),
	}, nil
}

// fsBackend guards each key with a lock so concurrent writes to the same
// artifact serialize, and writes via temp file + rename so readers never see
// partial objects.
type fsBackend struct {
	basePath string
	keys     KeyResolver
	version  func(name, filename string) string

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fsBackend) Keys() KeyResolver {
	return s.keys
}

func (s *fsBackend) SignedURL(*index.Package) (string, error) {
	return "", ErrNoSignedURLs
}

func (s *fsBackend) Open(ctx context.Context, pkg *index.Package) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	filePath, err := s.objectPath(s.keys.Resolve(pkg))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *fsBackend) Put(ctx context.Context, pkg *index.Package, body io.Reader) error {
	key := s.keys.Resolve(pkg)
	unlock := s.lockKey(key)
	defer unlock()

	filePath, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".wheelhub-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *fsBackend) Delete(ctx context.Context, pkg *index.Package) error {
	key := s.keys.Resolve(pkg)
	unlock := s.lockKey(key)
	defer unlock()

	filePath, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// LoadAll rebuilds package records from every stored object. The general
// prefix area is walked before the upload prefix area, so objects under the
// upload prefix surface last with origin upload.
func (s *fsBackend) LoadAll(ctx context.Context) ([]*index.Package, error) {
	var objects []StoredObject
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".wheelhub-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		objects = append(objects, StoredObject{
			Key:     filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	uploadArea := func(obj StoredObject) bool {
		return s.keys.UploadPrefix != "" && strings.HasPrefix(obj.Key, s.keys.UploadPrefix+"/")
	}
	sort.SliceStable(objects, func(i, j int) bool {
		return !uploadArea(objects[i]) && uploadArea(objects[j])
	})

	var packages []*index.Package
	for _, obj := range objects {
		if pkg := FromStoredObject(s.keys, obj, s.version); pkg != nil {
			packages = append(packages, pkg)
		}
	}
	return packages, nil
}

func (s *fsBackend) lockKey(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &keyLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// objectPath maps a storage key to an absolute file path, rejecting keys
// that would escape the storage root.
func (s *fsBackend) objectPath(key string) (string, error) {
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" {
		return "", errors.New("empty storage key")
	}
	filePath := filepath.Join(s.basePath, filepath.FromSlash(clean))
	if !strings.HasPrefix(filePath, s.basePath+string(os.PathSeparator)) {
		return "", errors.New("invalid storage key")
	}
	return filePath, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
