// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package config_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portico/portico/internal/config"
)

func TestGenerateSchema(t *testing.T) {
	data, err := config.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, config.SchemaID, schema["$id"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"http", "metrics", "log", "store", "auth", "admin", "activation"} {
		assert.Contains(t, props, key)
	}
}

func TestValidateYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{name: "empty document", yaml: ""},
		{name: "durations as strings", yaml: "auth:\n  session_ttl: 12h\n  cookie_max_age: 720h\n"},
		{name: "unknown top-level key", yaml: "cache:\n  size: 10\n", wantErr: true},
		{name: "bad driver", yaml: "store:\n  driver: sqlite\n", wantErr: true},
		{name: "bad scheme", yaml: "auth:\n  password_scheme: bcrypt\n", wantErr: true},
		{name: "activation code length", yaml: "activation:\n  pro: ABC\n", wantErr: true},
		{name: "malformed yaml", yaml: "http: [\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.ValidateYAML([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: json\n"), 0o600))
	assert.NoError(t, config.ValidateFile(path))

	assert.Error(t, config.ValidateFile(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestFormatSchemaError(t *testing.T) {
	assert.Empty(t, config.FormatSchemaError(nil))
	assert.Equal(t, "bad value", config.FormatSchemaError(errors.New("schema validation failed: bad value")))
	assert.Equal(t, "other", config.FormatSchemaError(errors.New("other")))
}
