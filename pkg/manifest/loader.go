package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a workflow manifest from path. Files ending in .json are parsed
// as JSON and everything else as YAML. The document is schema-checked before
// decoding, then defaults are applied.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("manifest file not found: %s", path)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("permission denied reading manifest: %s", path)
	case err != nil:
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromReader is Load for an already open stream. path only selects the
// format and may be empty.
func LoadFromReader(r io.Reader, path string) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses, validates and decodes a manifest. Validation sees
// the raw document so unknown keys are reported instead of silently dropped.
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("manifest file is empty")
	}

	doc, err := normalize(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(doc); err != nil {
		return nil, err
	}

	// YAML is funnelled through JSON so only the json tags matter.
	m := new(Manifest)
	if err := json.Unmarshal(doc, m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	m.ApplyDefaults()
	return m, nil
}

// normalize returns the manifest as a JSON document.
func normalize(data []byte, isJSON bool) ([]byte, error) {
	if isJSON {
		var probe any
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("invalid JSON in manifest: %w", err)
		}
		return data, nil
	}

	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("invalid YAML in manifest: %w", err)
	}
	doc, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("convert manifest to JSON: %w", err)
	}
	return doc, nil
}
