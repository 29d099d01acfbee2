package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const defaultImageExtension = "jpg"

// EnsureDir creates the scratch directory used for staged uploads.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create temp dir %s: %w", dir, err)
	}
	return nil
}

// ExtensionOf returns the lower-cased trailing dot-segment of the file name, or "jpg".
func ExtensionOf(name string) string {
	base := filepath.Base(filepath.FromSlash(name))
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return defaultImageExtension
	}
	return strings.ToLower(base[idx+1:])
}

// StageTemp writes r into a uniquely named file under dir. The returned cleanup
// removes the file and must always be called once the path is no longer needed.
func StageTemp(dir string, r io.Reader, ext string) (string, func(), error) {
	path := filepath.Join(dir, fmt.Sprintf("%s.%s", uuid.NewString(), ext))

	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warnf("can not remove temp file %s: %v", path, err)
		}
	}

	_, copyErr := io.Copy(out, r)
	closeErr := out.Close()
	if copyErr != nil {
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", copyErr)
	}
	if closeErr != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", closeErr)
	}
	return path, cleanup, nil
}
