package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/domshift/dbopen"
	"github.com/hazyhaar/domshift/mover"
	"github.com/hazyhaar/domshift/watch"
)

// RuleSet is a named YAML rule file kept in the database.
type RuleSet struct {
	Name      string `json:"name"`
	YAML      string `json:"yaml"`
	Version   int64  `json:"version"`
	UpdatedAt int64  `json:"updated_at"`
}

// Config parses the rule set.
func (r *RuleSet) Config() (*mover.FileConfig, error) {
	return mover.ParseConfig([]byte(r.YAML))
}

// PutRuleSet validates doc and stores it under name, bumping its version.
func (s *Store) PutRuleSet(ctx context.Context, name string, doc []byte) (*RuleSet, error) {
	if name == "" {
		return nil, errors.New("store: rule set name is required")
	}
	if _, err := mover.ParseConfig(doc); err != nil {
		return nil, fmt.Errorf("store: rule set %q: %w", name, err)
	}
	now := time.Now().UnixMilli()
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO rule_sets (name, yaml, version, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(name) DO UPDATE SET
			yaml = excluded.yaml,
			version = rule_sets.version + 1,
			updated_at = excluded.updated_at`,
		name, string(doc), now)
	if err != nil {
		return nil, fmt.Errorf("store: put rule set: %w", err)
	}
	return s.GetRuleSet(ctx, name)
}

// GetRuleSet returns the rule set called name, or nil, nil.
func (s *Store) GetRuleSet(ctx context.Context, name string) (*RuleSet, error) {
	r := &RuleSet{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT name, yaml, version, updated_at FROM rule_sets WHERE name = ?`, name).
		Scan(&r.Name, &r.YAML, &r.Version, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get rule set: %w", err)
	}
	return r, nil
}

// ListRuleSets returns every rule set ordered by name.
func (s *Store) ListRuleSets(ctx context.Context) ([]RuleSet, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT name, yaml, version, updated_at FROM rule_sets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list rule sets: %w", err)
	}
	defer rows.Close()

	var out []RuleSet
	for rows.Next() {
		var r RuleSet
		if err := rows.Scan(&r.Name, &r.YAML, &r.Version, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRuleSet removes name. Deleting a missing set is not an error.
func (s *Store) DeleteRuleSet(ctx context.Context, name string) error {
	_, err := dbopen.Exec(ctx, s.DB, `DELETE FROM rule_sets WHERE name = ?`, name)
	return err
}

// RuleSetVersion is a watch detector reporting the version of one rule
// set, 0 while it does not exist. Unlike PRAGMA data_version it also sees
// writes made through the watched handle.
func RuleSetVersion(name string) watch.ChangeDetector {
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, `
			SELECT COALESCE((SELECT version FROM rule_sets WHERE name = ?), 0)`, name).Scan(&v)
		return v, err
	}
}
