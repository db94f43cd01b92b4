package studio

import (
	"context"
	"fmt"
	"path"
	"strings"

	"academy/internal/domain"
	"academy/internal/pipeline"
	"academy/pkg/zip"
)

// Export bundles every generated asset of a finished run plus a script.txt
// into a zip archive.
func (s *Service) Export(ctx context.Context, userID, runID string) ([]byte, string, error) {
	rec, err := s.lookup(userID, runID)
	if err != nil {
		return nil, "", err
	}
	run := rec.snapshot()
	if !run.Done() {
		return nil, "", fmt.Errorf("studio: run %s still generating: %w", runID, domain.ErrConflict)
	}

	var script strings.Builder
	if run.Topic != "" {
		fmt.Fprintf(&script, "# %s\n\n", run.Topic)
	}
	assets := make([]zip.Asset, 0, 2*len(run.Scenes)+1)
	for _, sc := range run.Scenes {
		fmt.Fprintf(&script, "[%02d] %s\n%s\n\n", sc.Index+1, sc.Prompt, sc.Narration)
		for _, blob := range []*pipeline.Blob{sc.PrimaryAsset, sc.SecondaryAsset} {
			if blob == nil {
				continue
			}
			data, err := s.blobs.Read(ctx, blob.Key)
			if err != nil {
				return nil, "", fmt.Errorf("studio: read %s: %w", blob.Key, err)
			}
			assets = append(assets, zip.Asset{Filename: path.Base(blob.Key), MIME: blob.MIME, Data: data})
		}
	}
	if len(assets) == 0 {
		return nil, "", fmt.Errorf("studio: run %s has no assets: %w", runID, domain.ErrNotFound)
	}
	assets = append(assets, zip.Asset{Filename: "script.txt", MIME: "text/plain", Data: []byte(script.String())})

	data, err := zip.ArchiveAssets(assets, run.UpdatedAt)
	if err != nil {
		return nil, "", err
	}
	return data, fmt.Sprintf("studio-%s.zip", run.ID), nil
}
