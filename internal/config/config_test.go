package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() Settings {
	s := Settings{
		Indexer: IndexerConfig{
			Project:    "/tmp/project",
			Extensions: []string{"md"},
		},
		Database: DatabaseConfig{Collection: "docs"},
	}
	applyDefaults(&s)
	return s
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid", func(*Settings) {}, false},
		{"missing project", func(s *Settings) { s.Indexer.Project = "" }, true},
		{"missing collection", func(s *Settings) { s.Database.Collection = "" }, true},
		{"no extensions for directory", func(s *Settings) { s.Indexer.Extensions = nil }, true},
		{"no extensions for file", func(s *Settings) {
			s.Indexer.Extensions = nil
			s.Indexer.IsFile = true
		}, false},
		{"unknown provider", func(s *Settings) { s.Database.Provider = "pinecone" }, true},
		{"chromem provider", func(s *Settings) { s.Database.Provider = "chromem" }, false},
		{"unknown model provider", func(s *Settings) { s.Model.Provider = "bert" }, true},
		{"local model without path", func(s *Settings) {
			s.Model.Local = true
			s.Model.Location = ""
		}, true},
		{"bad url", func(s *Settings) { s.Database.URL = "://" }, true},
		{"directories under project", func(s *Settings) {
			s.Indexer.Directories = []string{"docs", "/tmp/project/src"}
		}, false},
		{"absolute directory outside project", func(s *Settings) {
			s.Indexer.Directories = []string{"/tmp/shared"}
		}, true},
		{"relative directory escaping project", func(s *Settings) {
			s.Indexer.Directories = []string{"../shared"}
		}, true},
		{"negative rate limit", func(s *Settings) { s.Model.RateLimit = -1 }, true},
		{"secrets allowlist", func(s *Settings) { s.Indexer.SecretsAllowlist = []string{"^EXAMPLE_"} }, false},
		{"bad secrets allowlist", func(s *Settings) { s.Indexer.SecretsAllowlist = []string{"("} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		url      string
		host     string
		port     int
		tls      bool
		hasError bool
	}{
		{url: "http://localhost:6334", host: "localhost", port: 6334},
		{url: "https://qdrant.example.com:443", host: "qdrant.example.com", port: 443, tls: true},
		{url: "http://qdrant", host: "qdrant", port: 6334},
		{url: "http://qdrant:abc", hasError: true},
		{url: "localhost", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			host, port, useTLS, err := DatabaseConfig{URL: tt.url}.Endpoint()
			if tt.hasError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.tls, useTLS)
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	p, err := ExpandPath("~/.cache/models")
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/.cache/models", p)

	p, err = ExpandPath("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", p)
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("super-secret-key")

	assert.Equal(t, "super-secret-key", s.Value())
	assert.True(t, s.IsSet())
	assert.NotContains(t, s.String(), "super")
	assert.NotContains(t, fmt.Sprintf("%v %s %#v", s, s, s), "super")

	b, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "super")

	var empty Secret
	assert.False(t, empty.IsSet())
	assert.Equal(t, "", empty.String())
}

func TestApplyDefaults_Telemetry(t *testing.T) {
	s := validSettings()
	assert.False(t, s.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", s.Telemetry.Endpoint)
	assert.Equal(t, "grpc", s.Telemetry.Protocol)
	assert.Equal(t, 1.0, s.Telemetry.SampleRate)
	assert.Equal(t, 15*time.Second, s.Telemetry.ExportInterval.Duration())

	s.Telemetry = TelemetryConfig{SampleRate: -1, Protocol: "http/protobuf"}
	applyDefaults(&s)
	assert.Equal(t, -1.0, s.Telemetry.SampleRate)
	assert.Equal(t, "http/protobuf", s.Telemetry.Protocol)
}
