// Package ledger persists the set of order ids already confirmed ingested,
// as a flat newline-delimited text file. The file is the pipeline's only
// cross-run state: ids are only ever added, never removed or compacted.
//
// A single live pipeline instance is assumed; the file is not lock
// protected.
package ledger

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Load reads the ledger at path into a set. A missing file is an empty
// ledger (first run), not an error; any other open failure is fatal to the
// run.
func Load(path string) (map[string]struct{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}

	done := map[string]struct{}{}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		done[line] = struct{}{}
	}
	return done, nil
}

// Append writes the prior contents plus the newly confirmed ids, one per
// line. The first id ever written starts the file without a leading
// newline; every later append joins with exactly one.
func Append(path string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	prior, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "read ledger %s", path)
	}

	content := strings.TrimRight(string(prior), "\n")
	for _, id := range ids {
		if content == "" {
			content = id
			continue
		}
		content += "\n" + id
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "write ledger %s", path)
	}
	return nil
}
