package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/cathedral"
	"github.com/templedb/templedb/internal/config"
	"github.com/templedb/templedb/internal/storage"
)

var (
	exportOut       string
	exportCompress  string
	exportExclude   []string
	exportSkipVCS   bool
	exportSkipEnvs  bool
	exportOverwrite bool

	importOverwrite bool
	importSlug      string
)

var exportCmd = &cobra.Command{
	Use:   "export <slug>",
	Short: "Export a project as a cathedral package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var compression cathedral.Compression
		switch exportCompress {
		case "", "none":
			compression = cathedral.CompressionNone
		case "gzip":
			compression = cathedral.CompressionGzip
		case "zstd":
			compression = cathedral.CompressionZstd
		default:
			return fmt.Errorf("invalid compression %q (none|gzip|zstd): %w",
				exportCompress, storage.ErrInvalidInput)
		}

		exporter := cathedral.NewExporter(store)
		result, err := exporter.Export(rootCtx, args[0], exportOut, cathedral.ExportOptions{
			Compression:      compression,
			ExcludeGlobs:     exportExclude,
			SkipVCS:          exportSkipVCS,
			SkipEnvironments: exportSkipEnvs,
			Overwrite:        exportOverwrite,
			CreatedBy:        config.Author(),
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(result)
			return nil
		}
		fmt.Printf("Exported %s: %d files, %d commits, %d branches (%d bytes)\n",
			result.Path, result.Files, result.Commits, result.Branches, result.TotalBytes)
		fmt.Printf("Checksum: %s\n", result.Checksum)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <package>",
	Short: "Import a cathedral package",
	Long:  `Imports a cathedral package directory or archive. The package checksum is verified before any write; the whole import is one transaction.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		importer := cathedral.NewImporter(store)
		result, err := importer.Import(rootCtx, args[0], cathedral.ImportOptions{
			Overwrite: importOverwrite,
			NewSlug:   importSlug,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(result)
			return nil
		}
		fmt.Printf("Imported %s: %d files, %d branches, %d commits (%d deduplicated), %d environments\n",
			result.Project.Slug, result.Files, result.Branches, result.Commits,
			result.SkippedCommits, result.Environments)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", ".", "Output directory")
	exportCmd.Flags().StringVar(&exportCompress, "compress", "none", "Container compression: none|gzip|zstd")
	exportCmd.Flags().StringSliceVar(&exportExclude, "exclude", nil, "Glob patterns of files to exclude")
	exportCmd.Flags().BoolVar(&exportSkipVCS, "skip-vcs", false, "Omit branches and commit history")
	exportCmd.Flags().BoolVar(&exportSkipEnvs, "skip-environments", false, "Omit environment configs")
	exportCmd.Flags().BoolVar(&exportOverwrite, "overwrite", false, "Replace an existing package")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "Replace an existing project with the same slug")
	importCmd.Flags().StringVar(&importSlug, "slug", "", "Import under a different slug")
	rootCmd.AddCommand(exportCmd, importCmd)
}
