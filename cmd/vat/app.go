// File: cmd/vat/app.go
// Brief: Builds the collaborators shared by vat subcommands.

package main

import (
	"github.com/example/vat/internal/archive"
	"github.com/example/vat/internal/config"
	"github.com/example/vat/internal/environ"
	"github.com/example/vat/internal/launch"
	"github.com/example/vat/internal/logging"
	"github.com/example/vat/internal/publish"
	"github.com/example/vat/internal/registrylock"
	"github.com/example/vat/internal/resolver"
	"github.com/example/vat/internal/vcs"
	"github.com/example/vat/internal/version"
	"github.com/example/vat/internal/workspace"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

type app struct {
	opts      *config.Options
	log       logr.Logger
	resolver  *resolver.Resolver
	composer  *environ.Composer
	publisher *publish.Publisher
	workspace *workspace.Manager
	spawner   launch.Spawner
}

func newApp(cmd *cobra.Command, opts *config.Options) (*app, error) {
	log, err := logging.New(opts.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	log.V(1).Info("starting", "build", version.Get().String(), "repository", opts.Repository, "appDir", opts.AppDir)
	git := vcs.NewGit()
	lock := registrylock.New(opts.Repository, registrylock.WithLogger(log.WithName("lock")))
	publisher := publish.New(
		opts.Repository,
		lock,
		git,
		archive.NewZip(archive.ExtractOptions{}),
		publish.WithLogger(log.WithName("publish")),
	)
	return &app{
		opts:      opts,
		log:       log,
		resolver:  resolver.New(opts.Repository, resolver.WithLogger(log.WithName("resolve"))),
		composer:  environ.New(environ.WithSeparator(opts.Separator)),
		publisher: publisher,
		workspace: workspace.New(opts.Repository, git, publisher, workspace.WithLogger(log.WithName("workspace"))),
		spawner:   launch.NewExec(),
	}, nil
}
