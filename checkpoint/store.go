package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"teamrun/runtime"
)

// SchemaVersion identifies the checkpoint document layout. Readers reject
// anything else defensively.
const SchemaVersion = 1

// fileSuffix is the on-disk naming convention for checkpoint documents.
const fileSuffix = ".checkpoint.json"

// Checkpoint is a small, durable recovery document: enough state to resume
// a crashed run (goal, phase, policy profile, pending task ids) without
// replaying its event log. Its lifecycle is independent of the in-memory
// tracker.
type Checkpoint struct {
	SchemaVersion int               `json:"schemaVersion"`
	CheckpointID  string            `json:"checkpointId"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	Phase         runtime.Phase     `json:"phase"`
	Goal          string            `json:"goal"`
	PolicyProfile string            `json:"policyProfile"`
	PendingTasks  []string          `json:"pendingTasks"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Fields carries the caller-supplied parts of a new checkpoint.
type Fields struct {
	CheckpointID  string
	Phase         runtime.Phase
	Goal          string
	PolicyProfile string
	PendingTasks  []string
	Metadata      map[string]string
}

// New creates an in-memory checkpoint, stamping the schema version and
// creation time. CreatedAt is fixed for the checkpoint's lifetime;
// UpdatedAt is refreshed on every Save.
func New(f Fields) Checkpoint {
	now := time.Now()
	return Checkpoint{
		SchemaVersion: SchemaVersion,
		CheckpointID:  f.CheckpointID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Phase:         f.Phase,
		Goal:          f.Goal,
		PolicyProfile: f.PolicyProfile,
		PendingTasks:  append([]string(nil), f.PendingTasks...),
		Metadata:      f.Metadata,
	}
}

// Path is the deterministic file path for a checkpoint id in dir. Pure —
// callers may compute it before the file exists.
func Path(checkpointID, dir string) string {
	return filepath.Join(dir, checkpointID+fileSuffix)
}

// Save writes the checkpoint as indented JSON at Path(cp.CheckpointID, dir),
// refreshing UpdatedAt, and returns the path written.
func Save(cp *Checkpoint, dir string) (string, error) {
	if err := Validate(*cp); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	cp.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := Path(cp.CheckpointID, dir)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return path, nil
}

// Load reads and validates a checkpoint document. A document that fails
// schema checks is rejected before it can reach any live tracker.
func Load(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals a raw checkpoint document and validates it.
func Parse(data []byte) (Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if err := Validate(cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// Validate enforces the checkpoint schema, naming the offending field.
func Validate(cp Checkpoint) error {
	if cp.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unrecognized checkpoint schemaVersion %d (expected %d)", cp.SchemaVersion, SchemaVersion)
	}
	if cp.CheckpointID == "" {
		return fmt.Errorf("checkpoint is missing checkpointId")
	}
	if cp.Phase == "" {
		return fmt.Errorf("checkpoint %q is missing phase", cp.CheckpointID)
	}
	if cp.Goal == "" {
		return fmt.Errorf("checkpoint %q is missing goal", cp.CheckpointID)
	}
	return nil
}

// ListFiles returns the checkpoint file paths in dir, sorted
// lexicographically so the order is deterministic for a fixed directory.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
