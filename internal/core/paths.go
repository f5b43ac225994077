package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathResolver resolves a job's output destination before it is scheduled.
type PathResolver interface {
	Resolve(job JobSpec, index int, outputDir string, allowAnyPath bool) (string, error)
}

// OutputResolver is the default PathResolver. Jobs without a declared output
// get a deterministic name under the output directory; declared paths are
// confined to the output directory unless allowAnyPath is set.
type OutputResolver struct{}

func (OutputResolver) Resolve(job JobSpec, index int, outputDir string, allowAnyPath bool) (string, error) {
	base, err := filepath.Abs(expandHome(outputDir))
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}

	out := job.Output
	if out == "" {
		return filepath.Join(base, fmt.Sprintf("job-%03d.mp4", index)), nil
	}
	out = expandHome(out)
	if !filepath.IsAbs(out) {
		out = filepath.Join(base, out)
	}
	out = filepath.Clean(out)
	if !allowAnyPath && !within(base, out) {
		return "", fmt.Errorf("output path %s escapes output directory %s", out, base)
	}
	return out, nil
}

func within(base, path string) bool {
	return path == base || strings.HasPrefix(path, base+string(filepath.Separator))
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
