package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/acheong08/mjs-registry/internal/artifact"
	"github.com/acheong08/mjs-registry/internal/config"
	"github.com/acheong08/mjs-registry/internal/parser"
	"github.com/acheong08/mjs-registry/internal/registry"
)

var rootCmd = &cobra.Command{
	Use:   "mjs-registry",
	Short: "Serve single-file ES modules through the npm registry protocol",
	Long: `mjs-registry publishes {scope}/{name}/{version}.mjs files as npm packages.
Manifests are assembled on every request; version archives are built once
and kept in the cache directory.`,
	SilenceUsage: true,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(serveCmd, manifestCmd, packCmd)
}

// registryApp bundles the components every subcommand works with
type registryApp struct {
	cfg       *config.Config
	logger    *log.Logger
	manifests *registry.Builder
	artifacts *artifact.Cache
}

func setup(cmd *cobra.Command) (*registryApp, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "mjs-registry",
		ReportTimestamp: true,
	})
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	store := registry.NewModuleStore(osfs.New(cfg.ModulesDir))
	inferrer := parser.NewImportInferrer(cfg.ReservedPrefixes)

	manifests := registry.NewBuilder(store, inferrer, logger)
	manifests.Concurrency = cfg.Concurrency

	return &registryApp{
		cfg:       cfg,
		logger:    logger,
		manifests: manifests,
		artifacts: artifact.NewCache(store, osfs.New(cfg.CacheDir), inferrer, logger),
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
