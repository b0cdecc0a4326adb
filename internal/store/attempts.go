// Package store persists refinement artifacts: attempt code on disk and
// a cycle journal in SQLite. Artifacts are retained for every attempt,
// successful or not, so a session's history can be replayed after the fact.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"vulnforge/internal/logging"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// AttemptStore writes attempt artifacts under a base directory, one
// subdirectory per target.
type AttemptStore struct {
	baseDir string
}

// NewAttemptStore creates the base directory if needed.
func NewAttemptStore(baseDir string) (*AttemptStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("attempts directory required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create attempts directory: %w", err)
	}
	return &AttemptStore{baseDir: baseDir}, nil
}

// Save writes one attempt's code and returns its storage ID and path.
// The ID embeds the attempt number and a nanosecond timestamp so that
// re-runs of the same target never collide.
func (s *AttemptStore) Save(targetID string, attemptNumber int, code string) (storageID, path string, err error) {
	dir := filepath.Join(s.baseDir, sanitize(targetID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("create target directory: %w", err)
	}

	storageID = fmt.Sprintf("%s_attempt%d_%d", sanitize(targetID), attemptNumber, time.Now().UnixNano())
	path = filepath.Join(dir, storageID+".js")

	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		return "", "", fmt.Errorf("write attempt artifact: %w", err)
	}

	logging.StoreDebug("Saved attempt artifact %s (%d bytes)", storageID, len(code))
	return storageID, path, nil
}

// Load reads a previously saved artifact back by storage ID.
func (s *AttemptStore) Load(targetID, storageID string) (string, error) {
	path := filepath.Join(s.baseDir, sanitize(targetID), storageID+".js")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read attempt artifact: %w", err)
	}
	return string(data), nil
}

// List returns the storage IDs saved for a target, oldest first.
func (s *AttemptStore) List(targetID string) ([]string, error) {
	dir := filepath.Join(s.baseDir, sanitize(targetID))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".js") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".js"))
	}
	// IDs end in a nanosecond timestamp; sort on that, not lexically,
	// so attempt10 does not land before attempt2.
	sort.Slice(ids, func(i, j int) bool { return idTimestamp(ids[i]) < idTimestamp(ids[j]) })
	return ids, nil
}

func idTimestamp(id string) int64 {
	idx := strings.LastIndexByte(id, '_')
	if idx == -1 {
		return 0
	}
	var ts int64
	fmt.Sscanf(id[idx+1:], "%d", &ts)
	return ts
}

func sanitize(s string) string {
	cleaned := unsafeChars.ReplaceAllString(s, "_")
	if cleaned == "" {
		return "target"
	}
	return cleaned
}
