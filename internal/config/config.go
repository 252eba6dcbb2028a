// File: internal/config/config.go
// Brief: Runtime settings shared by every vat command.

// Package config defines the global flags of the vat CLI and resolves them
// into concrete paths: the application directory that holds the registry
// lock, stacks and launch history, and the package repository.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/vat/internal/catalog"
	"github.com/example/vat/internal/history"
	"github.com/example/vat/internal/stacks"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
)

// AppName names the per-user directory.
const AppName = "vat"

// RepositoryDirName is the default repository location inside the app dir.
const RepositoryDirName = "repository"

type Options struct {
	AppDir     string
	Repository string
	LogLevel   string
	Separator  string
	History    bool
	NoColor    bool
}

func NewOptions() *Options {
	return &Options{
		LogLevel:  "info",
		Separator: string(os.PathListSeparator),
		History:   true,
	}
}

// BindFlags registers the global flags on fs and returns their names.
func (o *Options) BindFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringVar(&o.AppDir, "app-dir", o.AppDir, "Directory for the registry lock, stacks and launch history (default ~/.config/vat)")
	names = append(names, "app-dir")
	fs.StringVar(&o.Repository, "repository", o.Repository, "Package repository root (default <app-dir>/repository)")
	names = append(names, "repository")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level for vat output (debug, info, warn, error)")
	names = append(names, "log-level")
	fs.StringVar(&o.Separator, "separator", o.Separator, "Separator used when appending or prepending environment values")
	names = append(names, "separator")
	fs.BoolVar(&o.History, "history", o.History, "Record launches in the history database")
	names = append(names, "history")
	fs.BoolVar(&o.NoColor, "no-color", o.NoColor, "Disable colored output")
	names = append(names, "no-color")
	return names
}

// Validate expands paths and fills defaults.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.AppDir) == "" {
		dir, err := DefaultAppDir()
		if err != nil {
			return err
		}
		o.AppDir = dir
	}
	appDir, err := expand(o.AppDir)
	if err != nil {
		return fmt.Errorf("app dir: %w", err)
	}
	o.AppDir = appDir
	if strings.TrimSpace(o.Repository) == "" {
		o.Repository = filepath.Join(o.AppDir, RepositoryDirName)
	}
	repo, err := expand(o.Repository)
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	o.Repository = repo
	if o.Separator == "" {
		return errors.New("--separator must not be empty")
	}
	return nil
}

func expand(path string) (string, error) {
	expanded, err := homedir.Expand(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

// DefaultAppDir returns $XDG_CONFIG_HOME/vat or ~/.config/vat.
func DefaultAppDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", AppName), nil
}

// SearchDirs lists the directories probed for config.yaml, most specific first.
func SearchDirs() []string {
	added := make(map[string]struct{})
	var dirs []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := added[path]; ok {
			return
		}
		added[path] = struct{}{}
		dirs = append(dirs, path)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		add(filepath.Join(xdg, AppName))
	}
	if home, err := homedir.Dir(); err == nil && home != "" {
		add(filepath.Join(home, ".config", AppName))
		add(filepath.Join(home, "."+AppName))
	}
	return dirs
}

func (o *Options) CatalogPath() string { return catalog.PathIn(o.Repository) }

func (o *Options) StacksPath() string { return filepath.Join(o.AppDir, stacks.FileName) }

func (o *Options) HistoryPath() string { return filepath.Join(o.AppDir, history.FileName) }
