// Package artifact creates uniquely named, timestamped files for snapshots
// and exports. Existing files are never overwritten.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const stampLayout = "2006-01-02T15:04:05.000Z07:00"

// maxSuffix bounds the collision suffix search within one timestamp.
const maxSuffix = 1000

// Stamp renders t as an RFC 3339 UTC timestamp with millisecond precision,
// with characters that are illegal in file names replaced by '-'.
func Stamp(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Format(stampLayout), ":", "-")
}

// Name returns prefix_<stamp><ext>.
func Name(prefix, ext string, t time.Time) string {
	return prefix + "_" + Stamp(t) + ext
}

// Write creates dir if needed and writes data to a new file named after
// prefix, t and ext. When the name is taken a "-N" suffix is added before ext.
// It returns the path written.
func Write(dir, prefix, ext string, t time.Time, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dir %s: %w", dir, err)
	}
	base := prefix + "_" + Stamp(t)
	for i := 0; i < maxSuffix; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("close %s: %w", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s%s in %s", base, ext, dir)
}
