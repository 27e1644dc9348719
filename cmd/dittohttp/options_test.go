package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittohttp/pkg/audit"
	"github.com/marmos91/dittohttp/pkg/config"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{name: "PortOnly", args: []string{"8080"}, want: options{port: 8080, portSet: true}},
		{name: "AllFlags", args: []string{"-t", "8", "-l", "/tmp/audit.log", "-log-level", "debug", "9000"},
			want: options{threads: 8, auditLog: "/tmp/audit.log", logLevel: "debug", port: 9000, portSet: true}},
		{name: "ZeroPort", args: []string{"0"}, wantErr: true},
		{name: "ConfigWithoutPort", args: []string{"-config", "/etc/dittohttp.yaml"},
			want: options{configPath: "/etc/dittohttp.yaml"}},
		{name: "MissingPort", args: []string{"-t", "2"}, wantErr: true},
		{name: "NonNumericPort", args: []string{"http"}, wantErr: true},
		{name: "PortOutOfRange", args: []string{"70000"}, wantErr: true},
		{name: "ExtraArguments", args: []string{"8080", "8081"}, wantErr: true},
		{name: "ZeroThreads", args: []string{"-t", "0", "8080"}, wantErr: true},
		{name: "UnknownFlag", args: []string{"-x", "8080"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			got, err := parseArgs(tt.args, &stderr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseInitArgs(t *testing.T) {
	var stderr bytes.Buffer

	opts, err := parseInitArgs([]string{"-force", "-config", "/tmp/x.yaml"}, &stderr)
	require.NoError(t, err)
	assert.True(t, opts.force)
	assert.Equal(t, "/tmp/x.yaml", opts.configPath)

	_, err = parseInitArgs([]string{"extra"}, &stderr)
	assert.ErrorIs(t, err, errUsage)
}

func TestOptionsApply(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Audit.Type = "badger"

	opts := &options{threads: 16, auditLog: "/var/log/audit.log", logLevel: "warn", port: 9999, portSet: true}
	opts.apply(cfg)

	assert.Equal(t, 16, cfg.Adapters.HTTP.Threads)
	assert.Equal(t, 9999, cfg.Adapters.HTTP.Port)
	assert.Equal(t, "file", cfg.Audit.Type)
	assert.Equal(t, "/var/log/audit.log", cfg.Audit.File["path"])
	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.NoError(t, config.Validate(cfg))
}

func TestOptionsApplyKeepsConfig(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Adapters.HTTP.Threads = 6
	cfg.Adapters.HTTP.Port = 8181

	(&options{}).apply(cfg)

	assert.Equal(t, 6, cfg.Adapters.HTTP.Threads)
	assert.Equal(t, 8181, cfg.Adapters.HTTP.Port)
	assert.Equal(t, "stderr", cfg.Audit.File["path"])
}

func TestRunUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 1, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "missing port")

	stderr.Reset()
	assert.Equal(t, 1, run([]string{"not-a-port"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "bad port number: not-a-port")

	stderr.Reset()
	assert.Equal(t, 1, run([]string{"0"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "bad port number: 0")
}

func TestRunSetupError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := "storage:\n  root: \"" + filepath.Join(dir, "missing") + "\"\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	assert.Equal(t, 1, run([]string{"-config", configPath, "8080"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "storage root")
}

func TestRunInit(t *testing.T) {
	var stdout, stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "dittohttp.yaml")

	require.Equal(t, 0, run([]string{"init", "-config", path}, &stdout, &stderr), stderr.String())
	assert.FileExists(t, path)
	assert.Contains(t, stdout.String(), path)

	assert.Equal(t, 1, run([]string{"init", "-config", path}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "already exists")

	assert.Equal(t, 0, run([]string{"init", "-force", "-config", path}, &stdout, &stderr))
}

func TestParseAuditArgs(t *testing.T) {
	var stderr bytes.Buffer

	opts, err := parseAuditArgs(nil, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 20, opts.limit)

	opts, err = parseAuditArgs([]string{"-n", "0", "-config", "/tmp/x.yaml"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 0, opts.limit)
	assert.Equal(t, "/tmp/x.yaml", opts.configPath)

	_, err = parseAuditArgs([]string{"-n", "-1"}, &stderr)
	assert.ErrorIs(t, err, errUsage)

	_, err = parseAuditArgs([]string{"extra"}, &stderr)
	assert.ErrorIs(t, err, errUsage)
}

func writeAuditConfig(t *testing.T, auditType string) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := "audit:\n" +
		"  type: " + auditType + "\n" +
		"  file:\n" +
		"    path: \"" + filepath.Join(dir, "audit.log") + "\"\n" +
		"  badger:\n" +
		"    db_path: \"" + filepath.Join(dir, "trail") + "\"\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestRunAudit(t *testing.T) {
	configPath := writeAuditConfig(t, "tee")

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	sink, err := config.CreateAuditSink(&cfg.Audit)
	require.NoError(t, err)
	require.NoError(t, sink.Record(audit.Entry{Method: "PUT", URI: "/a", Status: 201, RequestID: 1}))
	require.NoError(t, sink.Record(audit.Entry{Method: "GET", URI: "/a", Status: 200, RequestID: 2}))
	require.NoError(t, sink.Record(audit.Entry{Method: "APPEND", URI: "/b", Status: 404}))
	require.NoError(t, sink.Close())

	t.Run("Newest", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.Equal(t, 0, run([]string{"audit", "-n", "2", "-config", configPath}, &stdout, &stderr), stderr.String())
		assert.Equal(t, "GET,/a,200,2\nAPPEND,/b,404,0\n", stdout.String())
	})

	t.Run("All", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.Equal(t, 0, run([]string{"audit", "-n", "0", "-config", configPath}, &stdout, &stderr), stderr.String())
		assert.Equal(t, "PUT,/a,201,1\nGET,/a,200,2\nAPPEND,/b,404,0\n", stdout.String())
	})
}

func TestRunAuditWithoutTrail(t *testing.T) {
	var stdout, stderr bytes.Buffer
	configPath := writeAuditConfig(t, "file")

	assert.Equal(t, 1, run([]string{"audit", "-config", configPath}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "keeps no readable trail")
	assert.Empty(t, stdout.String())
}
