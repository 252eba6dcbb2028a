package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
)

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()
	if opts.LogLevel != "info" {
		t.Fatalf("log level default mismatch, got %s", opts.LogLevel)
	}
	if opts.Separator != string(os.PathListSeparator) {
		t.Fatalf("separator default mismatch, got %q", opts.Separator)
	}
	if !opts.History {
		t.Fatalf("history should be enabled by default")
	}
}

func TestValidateFillsPaths(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	opts := NewOptions()
	if err := opts.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if opts.AppDir != filepath.Join(xdg, AppName) {
		t.Fatalf("app dir = %s", opts.AppDir)
	}
	if opts.Repository != filepath.Join(xdg, AppName, RepositoryDirName) {
		t.Fatalf("repository = %s", opts.Repository)
	}
	if filepath.Dir(opts.CatalogPath()) != opts.Repository {
		t.Fatalf("catalog path %s outside repository", opts.CatalogPath())
	}
	if filepath.Dir(opts.HistoryPath()) != opts.AppDir || filepath.Dir(opts.StacksPath()) != opts.AppDir {
		t.Fatalf("history/stacks paths not in app dir")
	}
}

func TestValidateExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	opts := NewOptions()
	opts.AppDir = t.TempDir()
	opts.Repository = "~/studio/repo"
	if err := opts.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if opts.Repository != filepath.Join(home, "studio", "repo") {
		t.Fatalf("repository = %s", opts.Repository)
	}
}

func TestValidateRejectsEmptySeparator(t *testing.T) {
	opts := NewOptions()
	opts.AppDir = t.TempDir()
	opts.Separator = ""
	if err := opts.Validate(); err == nil {
		t.Fatalf("expected empty separator to fail")
	}
}

func TestBindFlags(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("vat", pflag.ContinueOnError)
	names := opts.BindFlags(fs)
	if len(names) != 6 {
		t.Fatalf("expected 6 flags, got %v", names)
	}
	if err := fs.Parse([]string{"--repository", "/srv/vat", "--separator", ":", "--history=false"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Repository != "/srv/vat" || opts.Separator != ":" || opts.History {
		t.Fatalf("unexpected options %+v", opts)
	}
}
