package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidStoreType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.Type = "postgres"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown store type")
	}
}

func TestValidate_InvalidContentType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.Content.Type = "ftp"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown content type")
	}
}

func TestValidate_StoreSections(t *testing.T) {
	tests := []struct {
		name   string
		store  StoreConfig
		errMsg string
	}{
		{
			name:   "badger without path",
			store:  StoreConfig{Type: "badger", Badger: map[string]any{}},
			errMsg: "db_path",
		},
		{
			name:  "badger in memory",
			store: StoreConfig{Type: "badger", Badger: map[string]any{"in_memory": true}},
		},
		{
			name:   "mongo without database",
			store:  StoreConfig{Type: "mongo", Mongo: map[string]any{"uri": "mongodb://localhost"}},
			errMsg: "database",
		},
		{
			name: "s3 without bucket",
			store: StoreConfig{Type: "memory", Content: ContentConfig{
				Type: "s3",
				S3:   map[string]any{"region": "eu-west-1"},
			}},
			errMsg: "bucket",
		},
		{
			name: "s3 complete",
			store: StoreConfig{Type: "memory", Content: ContentConfig{
				Type: "s3",
				S3:   map[string]any{"region": "eu-west-1", "bucket": "objfs"},
			}},
		},
		{
			name: "filesystem without path",
			store: StoreConfig{Type: "memory", Content: ContentConfig{
				Type:       "filesystem",
				Filesystem: map[string]any{},
			}},
			errMsg: "path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStore("store", &tt.store)
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got: %v", tt.errMsg, err)
			}
		})
	}
}

func TestValidate_Remotes(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Remotes = []RemoteConfig{
		{Name: "backup", Store: StoreConfig{Type: "memory"}},
		{Name: "backup", Store: StoreConfig{Type: "memory"}},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for duplicate remote names")
	}
	if !strings.Contains(err.Error(), "duplicate remote name") {
		t.Errorf("Expected duplicate name error, got: %v", err)
	}

	cfg.Remotes = []RemoteConfig{{Name: "bad:name", Store: StoreConfig{Type: "memory"}}}
	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for a remote name containing ':'")
	}

	cfg.Remotes = []RemoteConfig{{Name: "backup", Store: StoreConfig{Type: "mongo", Mongo: map[string]any{}}}}
	err = Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for incomplete remote store")
	}
	if !strings.Contains(err.Error(), "remotes[0].store") {
		t.Errorf("Expected error to name the remote, got: %v", err)
	}
}

func TestValidate_Session(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Session.Cwd = "relative/"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for relative cwd")
	}

	cfg = GetDefaultConfig()
	cfg.Session.Home = "home/alice/"
	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for relative home")
	}
}

func TestValidate_MetricsPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Port = 70000

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for out-of-range port")
	}
}

func TestValidate_GCBatchSize(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.GC.BatchSize = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative gc batch size")
	}
}
