// Package config loads the credentials resource for the climatetrace
// database. Only the credentials vary per deployment; the host and database
// name are fixed.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	Host     = "rds-climate-trace.watttime.org"
	Port     = 5432
	Database = "climatetrace"
)

// Params maps the credentials file. YAML is a superset of JSON, so both
// params.yaml and the legacy params.json load through the same decoder.
type Params struct {
	DBUser string `yaml:"db_user"`
	DBPass string `yaml:"db_pass"`
}

// LoadParams reads and validates the credentials file at path.
func LoadParams(path string) (*Params, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params file: %w", err)
	}

	var p Params
	if err := yaml.Unmarshal(content, &p); err != nil {
		return nil, fmt.Errorf("parse params file %s: %w", path, err)
	}
	if p.DBUser == "" || p.DBPass == "" {
		return nil, fmt.Errorf("params file %s is missing db_user or db_pass", path)
	}
	return &p, nil
}

// DSN renders the lib/pq connection string for the fixed host and database.
func (p *Params) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=require",
		Host, Port, p.DBUser, p.DBPass, Database)
}
