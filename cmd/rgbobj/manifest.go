package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const noManifestMessage = "no rgbobj.toml found\nplease name the object file explicitly, e.g.:\n  rgbobj dump build/main.o"

type projectManifest struct {
	Path   string
	Root   string
	Config projectConfig
}

type projectConfig struct {
	Object objectConfig `toml:"object"`
	Dump   dumpConfig   `toml:"dump"`
}

type objectConfig struct {
	Path string `toml:"path"`
}

type dumpConfig struct {
	Data bool `toml:"data"` // hex-dump section contents
	RPN  bool `toml:"rpn"`  // disassemble patch expressions
}

func findManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, "rgbobj.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadManifest(startDir string) (*projectManifest, bool, error) {
	manifestPath, ok, err := findManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := loadManifestConfig(manifestPath)
	if err != nil {
		return nil, true, err
	}
	return &projectManifest{
		Path:   manifestPath,
		Root:   filepath.Dir(manifestPath),
		Config: cfg,
	}, true, nil
}

func loadManifestConfig(path string) (projectConfig, error) {
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return projectConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("object") {
		return projectConfig{}, fmt.Errorf("%s: missing [object]", path)
	}
	if !meta.IsDefined("object", "path") || strings.TrimSpace(cfg.Object.Path) == "" {
		return projectConfig{}, fmt.Errorf("%s: missing [object].path", path)
	}
	return cfg, nil
}

// resolveObjectPath turns the manifest's object path into an absolute one.
func resolveObjectPath(manifest *projectManifest) (string, error) {
	if manifest == nil {
		return "", fmt.Errorf("missing project manifest")
	}
	rel := strings.TrimSpace(manifest.Config.Object.Path)
	path := filepath.Join(manifest.Root, filepath.FromSlash(rel))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: [object].path does not exist: %s", manifest.Path, path)
		}
		return "", fmt.Errorf("%s: failed to stat [object].path: %w", manifest.Path, err)
	}
	return path, nil
}
