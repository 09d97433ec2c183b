// Package config parses ronvoy's command-line flags and environment
// variables and loads the Envoy bootstrap document they point at.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	bootstrapv3 "github.com/envoyproxy/go-control-plane/envoy/config/bootstrap/v3"
	"google.golang.org/protobuf/encoding/protojson"
	"gopkg.in/yaml.v3"
)

// ReactorKind names the concurrency shape ronvoy should run listeners
// under, set by the mutually exclusive --thread-pool/--independent flags.
type ReactorKind string

const (
	ThreadPoolReactor  ReactorKind = "shared-pool"
	IndependentReactor ReactorKind = "independent"
)

// Config holds all runtime configuration for the ronvoy binary.
// Values are loaded once at startup via Parse() and then treated as immutable.
type Config struct {
	// ConfigPath is the bootstrap document to load, set by --config-path.
	ConfigPath string

	// Reactor is the event loop shape to run listeners under.
	Reactor ReactorKind

	// Concurrency is the worker/reactor count. Zero means "let the event
	// loop decide" (defaults to runtime.NumCPU()).
	Concurrency int
}

// Parse parses args (normally os.Args[1:]) and the CONCURRENCY environment
// variable into a Config. A malformed CONCURRENCY value is silently
// ignored, leaving Concurrency at zero.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("ronvoy", flag.ContinueOnError)

	configPath := fs.String("config-path", "bootstrap.yaml", "path to the Envoy bootstrap document (YAML or JSON)")
	threadPool := fs.Bool("thread-pool", false, "run listeners on a shared goroutine thread pool (default)")
	independent := fs.Bool("independent", false, "run listeners on independent, per-thread reactors")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *threadPool && *independent {
		return nil, fmt.Errorf("config: --thread-pool and --independent are mutually exclusive")
	}

	reactor := ThreadPoolReactor
	if *independent {
		reactor = IndependentReactor
	}

	concurrency := 0
	if v := os.Getenv("CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			concurrency = n
		}
	}

	return &Config{
		ConfigPath:  *configPath,
		Reactor:     reactor,
		Concurrency: concurrency,
	}, nil
}

// LoadBootstrap reads the bootstrap document at path and unmarshals it into
// a v3 Bootstrap message. Format is chosen by file extension: ".yaml" and
// ".yml" are parsed as YAML and reencoded to JSON before protojson takes
// over; everything else is treated as JSON directly.
func LoadBootstrap(path string) (*bootstrapv3.Bootstrap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading bootstrap %s: %w", path, err)
	}

	jsonBytes := raw
	if isYAMLPath(path) {
		jsonBytes, err = yamlToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("config: converting %s to JSON: %w", path, err)
		}
	}

	bootstrap := &bootstrapv3.Bootstrap{}
	unmarshaler := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := unmarshaler.Unmarshal(jsonBytes, bootstrap); err != nil {
		return nil, fmt.Errorf("config: decoding bootstrap %s: %w", path, err)
	}
	return bootstrap, nil
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// yamlToJSON round-trips through a generic map so gopkg.in/yaml.v3's
// decoded value (keyed by map[string]interface{}) becomes something
// encoding/json, and in turn protojson, can consume.
func yamlToJSON(raw []byte) ([]byte, error) {
	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
