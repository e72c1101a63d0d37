// Package scanner lists the top-level entries of a library root that may
// hold a game.
package scanner

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jamesainslie/shelf/pkg/shelf/logging"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// ListCandidates returns the direct children of root that are directories,
// or files whose extension is in extensions. Extensions are compared without
// the leading dot and case-sensitively. Symlinks are classified by their
// target. The result is sorted by path.
//
// A *types.ScanFailure is returned if root cannot be read.
func ListCandidates(root string, extensions []string) ([]types.CandidatePath, error) {
	log := logging.Get("scanner")

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &types.ScanFailure{Root: root, Err: err}
	}

	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[ext] = struct{}{}
	}

	candidates := make([]types.CandidatePath, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())

		isDir := entry.IsDir()
		if entry.Type()&os.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				log.Debug("skipping dangling symlink", "path", path, "error", err)
				continue
			}
			isDir = info.IsDir()
		}

		if !isDir {
			if _, ok := allowed[types.Extension(entry.Name())]; !ok {
				continue
			}
		}

		candidates = append(candidates, types.CandidatePath{Path: path, IsDir: isDir})
	}

	slices.SortFunc(candidates, func(a, b types.CandidatePath) int {
		return strings.Compare(a.Path, b.Path)
	})

	log.Debug("listed candidates", "root", root, "entries", len(entries), "candidates", len(candidates))
	return candidates, nil
}

// FileNames returns the base names of the candidates under root.
func FileNames(root string, extensions []string) ([]string, error) {
	candidates, err := ListCandidates(root, extensions)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = filepath.Base(c.Path)
	}
	return names, nil
}
