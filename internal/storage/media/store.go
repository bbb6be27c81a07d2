package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind groups stored files into sub-directories.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

var ErrEmptyMedia = errors.New("media payload is empty")

// Store keeps durable copies of user media under root/<kind>/.
type Store struct {
	root string
	now  func() time.Time
}

// New creates the store, making root if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{root: root, now: time.Now}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Save writes data as a new file and returns its path.
func (s *Store) Save(kind Kind, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyMedia
	}

	path, err := s.newPath(kind, name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}
	return path, nil
}

// Import copies the file at src into the store and returns the new path.
func (s *Store) Import(kind Kind, src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source media: %w", err)
	}
	defer in.Close()

	path, err := s.newPath(kind, filepath.Base(src))
	if err != nil {
		return "", err
	}

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create media: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("copy media: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close media: %w", err)
	}
	return path, nil
}

func (s *Store) newPath(kind Kind, name string) (string, error) {
	dir := filepath.Join(s.root, string(kind))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = defaultExt(kind)
	}
	file := fmt.Sprintf("%s_%d_%s%s", kind, s.now().UnixMilli(), uuid.NewString()[:8], ext)
	return filepath.Join(dir, file), nil
}

func defaultExt(kind Kind) string {
	switch kind {
	case KindImage:
		return ".jpg"
	case KindVideo:
		return ".mp4"
	case KindAudio:
		return ".m4a"
	default:
		return ".bin"
	}
}
