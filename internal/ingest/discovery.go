package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grimoire-ai/grimoire/internal/log"
)

// Discover walks the per-category subdirectories of dataDir and returns
// every record file found, paired with its category label. Directories
// missing from disk are logged and skipped; "_folders.json" files are
// upstream folder metadata, not records.
func Discover(dataDir string, categories map[string]string, logger log.Logger) ([]DiscoveredFile, error) {
	if len(categories) == 0 {
		categories = TargetCategories
	}

	// Stable iteration order keeps run summaries reproducible.
	dirNames := make([]string, 0, len(categories))
	for dir := range categories {
		dirNames = append(dirNames, dir)
	}
	sort.Strings(dirNames)

	var files []DiscoveredFile
	for _, dir := range dirNames {
		label := categories[dir]
		categoryDir := filepath.Join(dataDir, dir)

		if _, err := os.Stat(categoryDir); err != nil {
			logger.Warn("category directory not found, skipping", "dir", dir)
			continue
		}

		count := 0
		err := filepath.WalkDir(categoryDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			name := d.Name()
			if !strings.HasSuffix(name, ".json") || name == "_folders.json" {
				return nil
			}
			files = append(files, DiscoveredFile{Path: path, Category: label})
			count++
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", categoryDir, err)
		}

		logger.Info("discovered category", "category", label, "files", count)
	}

	return files, nil
}

// FilterCategories restricts the directory-to-label mapping to entries
// whose directory name or label appears in wanted. An empty wanted list
// returns the mapping unchanged.
func FilterCategories(all map[string]string, wanted []string) map[string]string {
	if len(wanted) == 0 {
		return all
	}

	want := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		want[strings.TrimSpace(w)] = true
	}

	filtered := make(map[string]string)
	for dir, label := range all {
		if want[dir] || want[label] {
			filtered[dir] = label
		}
	}
	return filtered
}
