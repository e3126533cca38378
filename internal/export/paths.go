package export

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Extension marks snapshot artifacts in the snapshots directory.
const Extension = ".snap"

// ArtifactPath returns the deterministic location of the artifact for a
// height. Deterministic naming is what makes exports idempotent: the file's
// presence is the completion signal.
func ArtifactPath(dir string, height uint64) string {
	return filepath.Join(dir, strconv.FormatUint(height, 10)+Extension)
}

// CountArtifacts returns the number of snapshot artifacts in dir. Read
// errors count as zero; this feeds status and metrics, not correctness.
func CountArtifacts(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), Extension) {
			n++
		}
	}
	return n
}
