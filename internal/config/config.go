// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Lllllllleong/candidatequiz/internal/models"
)

const (
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
	BackendMemory    = "memory"

	LockGCS  = "gcs"
	LockFile = "file"

	LockScopeFingerprint = "fingerprint"
	LockScopeGlobal      = "global"

	RefreshGoroutine = "goroutine"
	RefreshWorkflow  = "workflow"
)

// Config holds everything the questionnaire services need.
type Config struct {
	ProjectID      string
	VertexAIRegion string

	StoreBackend      string
	FirestoreDatabase string
	SQLitePath        string

	LockBackend      string
	LockBucket       string
	LockDir          string
	LockPollInterval time.Duration
	LockStaleAfter   time.Duration
	LockScope        string

	GroupTTL          time.Duration
	GenerationRetries int

	RefreshMode      string
	WorkflowID       string
	WorkflowLocation string

	GenerationModel  string
	ExtractionModel  string
	WikidataEndpoint string
}

// New returns a viper instance with the defaults and environment binding used by Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("VERTEX_AI_REGION", "us-central1")
	v.SetDefault("STORE_BACKEND", BackendFirestore)
	v.SetDefault("FIRESTORE_DATABASE", "(default)")
	v.SetDefault("SQLITE_PATH", "candidatequiz.db")
	v.SetDefault("LOCK_BACKEND", LockGCS)
	v.SetDefault("LOCK_DIR", ".locks")
	v.SetDefault("LOCK_POLL_INTERVAL", 3*time.Second)
	v.SetDefault("LOCK_STALE_AFTER", 15*time.Minute)
	v.SetDefault("GENERATION_LOCK_SCOPE", LockScopeFingerprint)
	v.SetDefault("GROUP_TTL", models.DefaultGroupTTL)
	v.SetDefault("GENERATION_RETRIES", 3)
	v.SetDefault("REFRESH_MODE", RefreshGoroutine)
	v.SetDefault("WORKFLOW_LOCATION", "us-central1")
	v.SetDefault("WORKFLOW_ID", "questionnaire-refresh")
	v.SetDefault("GENERATION_MODEL", "gemini-2.5-pro")
	v.SetDefault("EXTRACTION_MODEL", "gemini-2.5-pro")
	v.SetDefault("WIKIDATA_ENDPOINT", "https://query.wikidata.org/bigdata/namespace/wdq/sparql")
	return v
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	return FromViper(New())
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ProjectID:         v.GetString("PROJECT_ID"),
		VertexAIRegion:    v.GetString("VERTEX_AI_REGION"),
		StoreBackend:      strings.ToLower(v.GetString("STORE_BACKEND")),
		FirestoreDatabase: v.GetString("FIRESTORE_DATABASE"),
		SQLitePath:        v.GetString("SQLITE_PATH"),
		LockBackend:       strings.ToLower(v.GetString("LOCK_BACKEND")),
		LockBucket:        v.GetString("LOCK_BUCKET"),
		LockDir:           v.GetString("LOCK_DIR"),
		LockPollInterval:  v.GetDuration("LOCK_POLL_INTERVAL"),
		LockStaleAfter:    v.GetDuration("LOCK_STALE_AFTER"),
		LockScope:         strings.ToLower(v.GetString("GENERATION_LOCK_SCOPE")),
		GroupTTL:          v.GetDuration("GROUP_TTL"),
		GenerationRetries: v.GetInt("GENERATION_RETRIES"),
		RefreshMode:       strings.ToLower(v.GetString("REFRESH_MODE")),
		WorkflowID:        v.GetString("WORKFLOW_ID"),
		WorkflowLocation:  v.GetString("WORKFLOW_LOCATION"),
		GenerationModel:   v.GetString("GENERATION_MODEL"),
		ExtractionModel:   v.GetString("EXTRACTION_MODEL"),
		WikidataEndpoint:  v.GetString("WIKIDATA_ENDPOINT"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every backend has what it needs.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID environment variable must be set for the firestore backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must be set for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.LockBackend {
	case LockGCS:
		if c.LockBucket == "" {
			return fmt.Errorf("LOCK_BUCKET environment variable must be set for the gcs lock backend")
		}
	case LockFile:
		if c.LockDir == "" {
			return fmt.Errorf("LOCK_DIR must be set for the file lock backend")
		}
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}

	if c.LockScope != LockScopeFingerprint && c.LockScope != LockScopeGlobal {
		return fmt.Errorf("unknown GENERATION_LOCK_SCOPE %q", c.LockScope)
	}
	if c.LockPollInterval <= 0 {
		return fmt.Errorf("LOCK_POLL_INTERVAL must be positive")
	}
	if c.GroupTTL <= 0 {
		return fmt.Errorf("GROUP_TTL must be positive")
	}
	if c.GenerationRetries < 1 {
		return fmt.Errorf("GENERATION_RETRIES must be at least 1")
	}

	switch c.RefreshMode {
	case RefreshGoroutine:
	case RefreshWorkflow:
		if c.ProjectID == "" || c.WorkflowID == "" {
			return fmt.Errorf("PROJECT_ID and WORKFLOW_ID must be set for the workflow refresh mode")
		}
	default:
		return fmt.Errorf("unknown REFRESH_MODE %q", c.RefreshMode)
	}
	return nil
}

// NeedsVertex reports whether the generator must talk to Vertex AI.
func (c *Config) NeedsVertex() bool {
	return c.ProjectID != ""
}
