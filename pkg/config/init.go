package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoHTTP Configuration File
#
# Values can be overridden with DITTOHTTP_* environment variables, e.g.
# DITTOHTTP_ADAPTERS_HTTP_THREADS=16, and by command line flags.
`

// InitConfig writes a commented configuration file with default values to
// the default location and returns its path.
//
// Returns an error if the file exists and force is false.
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()
	if err := InitConfigToPath(configPath, force); err != nil {
		return "", err
	}
	return configPath, nil
}

// InitConfigToPath writes a commented default configuration file to
// configPath, creating parent directories as needed.
func InitConfigToPath(configPath string, force bool) error {
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use force to overwrite)", configPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with a comment above every
// section and most keys.
func generateYAMLWithComments(cfg *Config) (string, error) {
	http := cfg.Adapters.HTTP

	root := mapping(
		section("logging", "Operational logging", mapping(
			field("level", str(cfg.Logging.Level), "DEBUG, INFO, WARN or ERROR"),
			field("format", str(cfg.Logging.Format), "text or json"),
			field("output", str(cfg.Logging.Output), "stdout, stderr or a file path"),
		)),
		section("server", "Server-wide settings", mapping(
			field("shutdown_timeout", duration(cfg.Server.ShutdownTimeout), "Upper bound for graceful shutdown"),
			section("metrics", "Prometheus endpoint", mapping(
				field("enabled", boolean(cfg.Server.Metrics.Enabled), ""),
				field("port", integer(cfg.Server.Metrics.Port), ""),
			)),
		)),
		section("storage", "Where request URIs are resolved", mapping(
			field("root", str(cfg.Storage.Root), "Directory URIs are resolved against"),
			field("temp_dir", str(cfg.Storage.TempDir), "Staging directory, empty means root. Keep it on the same filesystem"),
			field("file_mode", quoted(cfg.Storage.FileMode), "Octal permission of files created by PUT"),
			field("dir_mode", quoted(cfg.Storage.DirMode), "Octal permission of directories created by PUT"),
		)),
		section("audit", "Per-request audit trail: file, badger, tee (file and badger) or none", mapping(
			field("type", str(cfg.Audit.Type), ""),
			section("file", "path: stdout, stderr or a file path", options(cfg.Audit.File)),
			section("badger", "db_path, in_memory, sync_writes", options(cfg.Audit.Badger)),
		)),
		section("adapters", "Protocol adapters", mapping(
			section("http", "HTTP file protocol", mapping(
				field("enabled", boolean(http.Enabled), ""),
				field("port", integer(http.Port), "0 picks an ephemeral port"),
				field("threads", integer(http.Threads), "Number of workers"),
				field("queue_capacity", integer(http.QueueCapacity), "Pending connections before accept blocks"),
				field("header_buffer_size", integer(http.HeaderBufferSize), "Largest accepted request header in bytes"),
				field("stream_chunk_size", integer(http.StreamChunkSize), "Body copy chunk size in bytes"),
				field("probe_timeout", duration(http.ProbeTimeout), "How long a worker waits for header bytes before requeueing"),
				field("header_timeout", duration(http.HeaderTimeout), "Deadline for a complete request header"),
				field("read_timeout", duration(http.ReadTimeout), "Deadline for reading a request body"),
				field("write_timeout", duration(http.WriteTimeout), "Deadline for writing a response"),
				field("linger_timeout", duration(http.LingerTimeout), "Drain unread input after a response, negative disables"),
				field("shutdown_timeout", duration(http.ShutdownTimeout), "Graceful drain before connections are force closed"),
				field("response_lock", str(http.ResponseLock), "connection or global"),
				field("max_accept_rate", float(http.MaxAcceptRate), "Accepted connections per second, 0 is unlimited"),
				field("accept_burst", integer(http.AcceptBurst), ""),
				field("metrics_log_interval", duration(http.MetricsLogInterval), "Period of the connection stats log line"),
			)),
		)),
	)

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// keyValue is a mapping entry under construction.
type keyValue struct {
	key, value *yaml.Node
}

func mapping(entries ...keyValue) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range entries {
		n.Content = append(n.Content, e.key, e.value)
	}
	return n
}

func field(key string, value *yaml.Node, comment string) keyValue {
	k := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
	if comment != "" {
		value.LineComment = comment
	}
	return keyValue{key: k, value: value}
}

func section(key, comment string, value *yaml.Node) keyValue {
	k := &yaml.Node{Kind: yaml.ScalarNode, Value: key, HeadComment: comment}
	return keyValue{key: k, value: value}
}

// options renders a sink options map with sorted keys.
func options(m map[string]any) *yaml.Node {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]keyValue, 0, len(keys))
	for _, k := range keys {
		var v yaml.Node
		if err := v.Encode(m[k]); err != nil {
			v = *str(fmt.Sprint(m[k]))
		}
		entries = append(entries, field(k, &v, ""))
	}
	return mapping(entries...)
}

func str(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// quoted keeps values such as "0600" from being read back as numbers.
func quoted(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s, Style: yaml.DoubleQuotedStyle}
}

func integer(i int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(i)}
}

func float(f float64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatFloat(f, 'g', -1, 64)}
}

func boolean(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
}

func duration(d time.Duration) *yaml.Node {
	return str(d.String())
}
