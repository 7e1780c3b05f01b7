// Package upload stores attached files on local disk and hands back stable
// reference strings. The engine never looks inside a file; only the
// reference travels through the status machinery.
package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Store struct {
	Dir string
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{Dir: dir}, nil
}

// DefaultDir returns the upload directory for a workspace.
func DefaultDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".taskdeck", "uploads")
}

// Save writes the file and returns its reference, "/uploads/<id>-<name>".
// The id prefix keeps distinct uploads of the same filename apart.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	base := sanitize(name)
	if base == "" {
		return "", fmt.Errorf("empty file name")
	}
	id := uuid.NewString()
	stored := id + "-" + base
	f, err := os.Create(filepath.Join(s.Dir, stored))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return "/uploads/" + stored, nil
}

// Open resolves a reference produced by Save back to the stored file.
func (s *Store) Open(ref string) (*os.File, error) {
	stored := strings.TrimPrefix(ref, "/uploads/")
	if stored == "" || stored != filepath.Base(stored) {
		return nil, fmt.Errorf("bad file reference %q", ref)
	}
	return os.Open(filepath.Join(s.Dir, stored))
}

func sanitize(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), ".")
}
