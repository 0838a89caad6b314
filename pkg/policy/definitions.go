package policy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontMatterDelim separates the optional YAML metadata block from the
// definition body.
var frontMatterDelim = []byte("---")

type frontMatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// LoadDefinitions reads every regular file in dir as a policy definition.
// The definition ID is the file name without extension. Files may start
// with a YAML front-matter block carrying name and description:
//
//	---
//	name: Standard governance
//	description: Default rules for AI service access.
//	---
//	package governance
//	...
func LoadDefinitions(dir string) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory: %w", err)
	}

	defs := make(map[string]*Definition)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read definition %s: %w", entry.Name(), err)
		}

		def, err := parseDefinition(entry.Name(), raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse definition %s: %w", entry.Name(), err)
		}
		def.Path = path
		defs[def.ID] = def
	}
	return defs, nil
}

// parseDefinition splits off the front matter, if present, and fills the
// definition from it.
func parseDefinition(filename string, raw []byte) (*Definition, error) {
	id := strings.TrimSuffix(filename, filepath.Ext(filename))
	def := &Definition{ID: id, Name: id, Content: raw}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if !bytes.HasPrefix(trimmed, frontMatterDelim) {
		return def, nil
	}

	rest := trimmed[len(frontMatterDelim):]
	end := bytes.Index(rest, frontMatterDelim)
	if end < 0 {
		return nil, fmt.Errorf("unterminated front matter")
	}

	var meta frontMatter
	if err := yaml.Unmarshal(rest[:end], &meta); err != nil {
		return nil, fmt.Errorf("invalid front matter: %w", err)
	}
	if meta.Name != "" {
		def.Name = meta.Name
	}
	def.Description = meta.Description
	def.Content = bytes.TrimLeft(rest[end+len(frontMatterDelim):], "\r\n")
	return def, nil
}

// SortedDefinitions returns the definitions ordered by ID.
func SortedDefinitions(defs map[string]*Definition) []*Definition {
	out := make([]*Definition, 0, len(defs))
	for _, d := range defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// hashContent returns the hex SHA-256 of a definition body.
func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
