package jobregistry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound indicates no submission matches the given id.
var ErrNotFound = errors.New("submission not found")

// ErrAmbiguous indicates an id prefix matches more than one submission.
var ErrAmbiguous = errors.New("submission id prefix is ambiguous")

// Store persists and loads SubmissionRecords from an on-disk directory.
//
// Directory layout:
//
//	<root>/<submission_id>/submission.json
//
// Root is expected to be under the app data dir.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) SubmissionDir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Store) SubmissionPath(id string) string {
	return filepath.Join(s.SubmissionDir(id), "submission.json")
}

func (s *Store) ensureRoot() error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("submission registry root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

// Write stores record atomically (temp file + rename).
func (s *Store) Write(record *SubmissionRecord) error {
	if record == nil {
		return fmt.Errorf("submission record is nil")
	}
	id := strings.TrimSpace(record.SubmissionID)
	if id == "" {
		return fmt.Errorf("submission_id is required")
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	dir := s.SubmissionDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create submission dir: %w", err)
	}

	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal submission record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "submission.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp submission file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp submission file: %w", err)
	}

	if err := os.Rename(tmpName, s.SubmissionPath(id)); err != nil {
		return fmt.Errorf("rename submission file: %w", err)
	}
	return nil
}

// Get loads the record with the given id.
func (s *Store) Get(id string) (*SubmissionRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("submission_id is required")
	}
	b, err := os.ReadFile(s.SubmissionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("submission.json is empty")
	}

	var record SubmissionRecord
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, fmt.Errorf("parse submission.json: %w", err)
	}
	return &record, nil
}

// Find resolves an id or unique id prefix.
func (s *Store) Find(idOrPrefix string) (*SubmissionRecord, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if rec, err := s.Get(idOrPrefix); err == nil {
		return rec, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var match *SubmissionRecord
	for i := range all {
		if !strings.HasPrefix(all[i].SubmissionID, idOrPrefix) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguous, idOrPrefix)
		}
		match = &all[i]
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	}
	return match, nil
}

// List returns all readable records, newest first.
func (s *Store) List() ([]SubmissionRecord, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read submissions root: %w", err)
	}

	out := make([]SubmissionRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.Get(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}
