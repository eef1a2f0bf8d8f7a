package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acheong08/mjs-registry/pkg/models"
)

var manifestOrigin string

var manifestCmd = &cobra.Command{
	Use:   "manifest <@scope/name>",
	Short: "Print the manifest a client would receive for a package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg, ok := models.SplitFullName(args[0])
		if !ok {
			return fmt.Errorf("invalid package name %q, expected @scope/name", args[0])
		}

		app, err := setup(cmd)
		if err != nil {
			return err
		}

		manifest, err := app.manifests.Build(cmd.Context(), pkg, manifestOrigin)
		if err != nil {
			return err
		}

		app.logger.Info("manifest built",
			"path", "/"+pkg.Escaped(),
			"versions", manifest.VersionList(),
			"origin", manifestOrigin,
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	},
}

var packCmd = &cobra.Command{
	Use:   "pack <@scope/name@version>",
	Short: "Build the archive for a version into the cache and print its path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pv, ok := models.SplitVersioned(args[0])
		if !ok {
			return fmt.Errorf("invalid package version %q, expected @scope/name@version", args[0])
		}

		app, err := setup(cmd)
		if err != nil {
			return err
		}

		path, err := app.artifacts.Warm(cmd.Context(), pv)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	manifestCmd.Flags().StringVar(&manifestOrigin, "origin", "http://localhost:8080", "origin prefixed to tarball URLs")
}
