package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/originlink/internal/model"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".originlink"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the YAML configuration file.
// Unset keys leave the corresponding default untouched, so scalar fields
// are pointers.
type File struct {
	Hostname    *string `yaml:"hostname,omitempty"`
	Port        *int    `yaml:"port,omitempty"`
	Protocol    *string `yaml:"protocol,omitempty"`
	SourceDir   *string `yaml:"sourceDir,omitempty"`
	ReplacedDir *string `yaml:"replacedDir,omitempty"`
	DownloadDir *string `yaml:"downloadDir,omitempty"`
	LinkType    *string `yaml:"linkType,omitempty"`
	MappingFile *bool   `yaml:"mappingFile,omitempty"`
	MappingPath *string `yaml:"mappingPath,omitempty"`

	Extensions []string `yaml:"extensions,omitempty"`
	Ignore     []string `yaml:"ignore,omitempty"`

	Download  DownloadFile  `yaml:"download,omitempty"`
	Discovery DiscoveryFile `yaml:"discovery,omitempty"`

	History *bool   `yaml:"history,omitempty"`
	DBDir   *string `yaml:"dbDir,omitempty"`
}

// DownloadFile holds the download section of the configuration file.
type DownloadFile struct {
	Concurrency *int              `yaml:"concurrency,omitempty"`
	Timeout     *time.Duration    `yaml:"timeout,omitempty"`
	UserAgent   *string           `yaml:"userAgent,omitempty"`
	Proxy       *string           `yaml:"proxy,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// DiscoveryFile holds the discovery section of the configuration file.
type DiscoveryFile struct {
	Enabled    *bool          `yaml:"enabled,omitempty"`
	Port       *int           `yaml:"port,omitempty"`
	Timeout    *time.Duration `yaml:"timeout,omitempty"`
	Entry      *string        `yaml:"entry,omitempty"`
	ChromePath *string        `yaml:"chromePath,omitempty"`
}

// LoadConfigFile loads the configuration from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers should handle this error appropriately based on whether
// the config file path was explicitly specified by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .originlink in the current directory
// 3. Look for .originlink in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Apply copies every value set in the file onto cfg.
func (f *File) Apply(cfg *Config) {
	setString(&cfg.Hostname, f.Hostname)
	setInt(&cfg.Port, f.Port)
	setString(&cfg.Protocol, f.Protocol)
	setString(&cfg.SourceDir, f.SourceDir)
	setString(&cfg.ReplacedDir, f.ReplacedDir)
	setString(&cfg.DownloadDir, f.DownloadDir)
	if f.LinkType != nil {
		cfg.LinkType = model.LinkType(*f.LinkType)
	}
	setBool(&cfg.MappingFile, f.MappingFile)
	setString(&cfg.MappingPath, f.MappingPath)

	if len(f.Extensions) > 0 {
		cfg.Extensions = append([]string(nil), f.Extensions...)
	}
	if len(f.Ignore) > 0 {
		cfg.Ignore = append([]string(nil), f.Ignore...)
	}

	setInt(&cfg.Concurrency, f.Download.Concurrency)
	if f.Download.Timeout != nil {
		cfg.Timeout = *f.Download.Timeout
	}
	setString(&cfg.UserAgent, f.Download.UserAgent)
	setString(&cfg.Proxy, f.Download.Proxy)
	for k, v := range f.Download.Headers {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers[k] = v
	}

	setBool(&cfg.Discovery, f.Discovery.Enabled)
	setInt(&cfg.DiscoveryPort, f.Discovery.Port)
	if f.Discovery.Timeout != nil {
		cfg.DiscoveryTimeout = *f.Discovery.Timeout
	}
	setString(&cfg.EntryPage, f.Discovery.Entry)
	setString(&cfg.ChromePath, f.Discovery.ChromePath)

	setBool(&cfg.History, f.History)
	setString(&cfg.DBDir, f.DBDir)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
