package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"
)

type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchiveAssets bundles assets into a zip archive. Filenames are flattened
// to their base name and must be unique.
func ArchiveAssets(assets []Asset, modified time.Time) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		name := path.Base(strings.ReplaceAll(strings.TrimSpace(asset.Filename), "\\", "/"))
		if name == "" || name == "." || name == "/" {
			return nil, fmt.Errorf("zip: invalid filename %q", asset.Filename)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("zip: duplicate filename %q", name)
		}
		seen[name] = struct{}{}

		method := zip.Deflate
		// already-compressed media gains nothing from deflate
		if strings.HasPrefix(asset.MIME, "image/") || asset.MIME == "audio/mpeg" {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: modified})
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", name, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	return buf.Bytes(), nil
}
