// Package internal wires configuration and pipeline orchestration for the
// docalign CLI.
package internal

import (
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/Anya-org/docalign/internal/duplication"
	"github.com/Anya-org/docalign/internal/migrate"
)

// Duplication strategies.
const (
	StrategyExact      = "exact"
	StrategySimilarity = "similarity"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Source      SourceConfig      `yaml:"source"`
	Docs        DocsConfig        `yaml:"docs"`
	Migration   MigrationConfig   `yaml:"migration"`
	Duplication DuplicationConfig `yaml:"duplication"`
	Ledger      LedgerConfig      `yaml:"ledger"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Docs.Validate(); err != nil {
		return err
	}
	if err := c.Migration.Validate(); err != nil {
		return err
	}
	return c.Duplication.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// Workers bounds every worker pool in the pipeline; 0 means automatic
	// (the smaller of NumCPU and the module count).
	Workers int `yaml:"workers"`
}

// SourceConfig describes the source tree being documented.
type SourceConfig struct {
	Root string `yaml:"root"`
	// Extensions that count as compilable source files.
	Extensions []string `yaml:"extensions"`
	// EntryFiles checked (in order) for a module's description line.
	EntryFiles []string `yaml:"entry_files"`
}

// Validate validates the source configuration.
func (c *SourceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Extensions, validation.Required),
	)
}

// DocsConfig describes the documentation tree.
type DocsConfig struct {
	Root string `yaml:"root"`
	// Reserved namespaces are exempt from orphan detection.
	Reserved []string `yaml:"reserved"`
}

// Validate validates the docs configuration.
func (c *DocsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// MigrationConfig controls legacy content migration.
type MigrationConfig struct {
	LegacyRoot string `yaml:"legacy_root"`
	// SubstantiveLines is the line-count threshold a legacy file must
	// exceed to be archived.
	SubstantiveLines int `yaml:"substantive_lines"`
}

// Validate validates the migration configuration.
func (c *MigrationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SubstantiveLines, validation.Min(0)),
	)
}

// DuplicationConfig controls the duplicate scan.
type DuplicationConfig struct {
	Strategy            string   `yaml:"strategy"`
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
	Ignore              []string `yaml:"ignore"`
	// Strict makes a scan with findings exit nonzero.
	Strict bool `yaml:"strict"`
}

// Validate validates the duplication configuration.
func (c *DuplicationConfig) Validate() error {
	if c.Strategy == "" {
		c.Strategy = StrategyExact
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Strategy, validation.In(StrategyExact, StrategySimilarity)),
		validation.Field(&c.SimilarityThreshold, validation.Min(0.0), validation.Max(1.0)),
	)
}

// LedgerConfig holds the optional run-history database path. Empty disables
// the ledger.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Source: SourceConfig{
			Root:       "./src",
			Extensions: []string{".rs"},
			EntryFiles: []string{"mod.rs", "lib.rs", "main.rs"},
		},
		Docs: DocsConfig{
			Root:     "./docs",
			Reserved: []string{"api", "getting-started", "archive"},
		},
		Migration: MigrationConfig{
			LegacyRoot:       "./docs_legacy",
			SubstantiveLines: migrate.DefaultThreshold,
		},
		Duplication: DuplicationConfig{
			Strategy:            StrategyExact,
			SimilarityThreshold: duplication.DefaultSimilarityThreshold,
			Ignore:              []string{"**/archive/**"},
		},
	}
}
