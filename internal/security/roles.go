// Package security holds the thin permission plumbing: a YAML role table
// mapping roles to the input types they may submit. The role store itself
// (who has which role) is an external collaborator.
package security

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

// RoleTable is the parsed permission table. An empty table allows
// everything: permissions are an opt-in restriction.
type RoleTable struct {
	Roles map[string]RoleEntry `yaml:"roles"`
}

// RoleEntry lists the input types one role may use. "*" allows all.
type RoleEntry struct {
	InputTypes []string `yaml:"inputTypes"`
}

// LoadRoles reads the YAML role file. A missing file yields an empty
// (allow-all) table rather than an error.
func LoadRoles(path string, logger *slog.Logger) (*RoleTable, error) {
	if path == "" {
		return &RoleTable{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("roles file does not exist, allowing all", "path", path)
			return &RoleTable{}, nil
		}
		return nil, fmt.Errorf("read roles file: %w", err)
	}

	var table RoleTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse roles file %s: %w", path, err)
	}
	logger.Info("loaded role table", "path", path, "roles", len(table.Roles))
	return &table, nil
}

// Allows reports whether the role may submit the given input type.
// Unknown roles and an empty table default to allow.
func (t *RoleTable) Allows(role string, inputType domain.InputType) bool {
	if t == nil || len(t.Roles) == 0 {
		return true
	}
	entry, ok := t.Roles[role]
	if !ok {
		return true
	}
	for _, it := range entry.InputTypes {
		if it == "*" || it == string(inputType) {
			return true
		}
	}
	return false
}
