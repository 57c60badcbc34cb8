package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FileStore keeps assets under one directory on local disk. Writes go
// through a temp file and a rename so readers never observe a partial file.
type FileStore struct {
	root  string
	seqMu sync.Mutex
}

func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

// BasePath returns the root directory.
func (s *FileStore) BasePath() string { return s.root }

// Path resolves key to its location on disk.
func (s *FileStore) Path(key string) (string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Write stores data at key, replacing any previous file, and returns the
// cleaned key.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(s.root, filepath.FromSlash(clean))
	tmp, err := s.writeTemp(filepath.Dir(dst), data)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: publish %s: %w", clean, err)
	}
	return clean, nil
}

// Read returns the bytes stored at key.
func (s *FileStore) Read(key string) ([]byte, error) {
	p, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

// Remove deletes the file at key. A missing file is not an error.
func (s *FileStore) Remove(key string) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", key, err)
	}
	return nil
}

// NextSequence scans dir for files named NNN.ext and returns the largest
// numeric prefix plus one. Gaps are never reused.
func (s *FileStore) NextSequence(dir, ext string) (int, error) {
	cleanDir, err := sanitizeDir(dir)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, filepath.FromSlash(cleanDir)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 1, nil
		}
		return 0, fmt.Errorf("storage: scan %s: %w", dir, err)
	}
	pattern := sequencePattern(ext)
	highest := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// WriteNext stores data as dir/NNN.ext using the next free sequence number
// and returns the number and the storage key. An existing file is never
// replaced; if another writer takes the number first the next one is used.
func (s *FileStore) WriteNext(ctx context.Context, dir, ext string, data []byte) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	cleanDir, err := sanitizeDir(dir)
	if err != nil {
		return 0, "", err
	}
	fullDir := filepath.Join(s.root, filepath.FromSlash(cleanDir))

	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	tmp, err := s.writeTemp(fullDir, data)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = os.Remove(tmp) }()

	seq, err := s.NextSequence(cleanDir, ext)
	if err != nil {
		return 0, "", err
	}
	for attempt := 0; attempt < 100; attempt++ {
		name := SequenceName(seq, ext)
		err := os.Link(tmp, filepath.Join(fullDir, name))
		if err == nil {
			return seq, path.Join(cleanDir, name), nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return 0, "", fmt.Errorf("storage: publish %s: %w", name, err)
		}
		seq++
	}
	return 0, "", fmt.Errorf("storage: no free sequence number in %s", dir)
}

// SequenceName formats a numbered file name, zero padded to three digits.
func SequenceName(seq int, ext string) string {
	return fmt.Sprintf("%03d.%s", seq, strings.TrimPrefix(ext, "."))
}

func (s *FileStore) writeTemp(dir string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return tmp, nil
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func sequencePattern(ext string) *regexp.Regexp {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[ext]; ok {
		return re
	}
	re := regexp.MustCompile(`^(\d+)\.` + regexp.QuoteMeta(ext) + `$`)
	patternCache[ext] = re
	return re
}

func sanitizeDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" || strings.TrimSpace(dir) == "." {
		return ".", nil
	}
	return sanitizeKey(dir)
}

// sanitizeKey turns key into a slash separated path relative to the root.
// Keys that would climb out of the root are rejected.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" || strings.Contains("/"+key+"/", "/../") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return clean, nil
}
