package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/importer"
)

var (
	importKind    string
	importCharset string
	importSheet   string
	importBatch   int
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load properties or activities from a CSV or XLSX export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importBatch > 0 {
			cfg.Import.BatchSize = importBatch
		}
		if importCharset == "" {
			importCharset = cfg.Import.Charset
		}
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		path := args[0]
		opts := importer.Options{
			Kind:      importer.Kind(importKind),
			Charset:   importCharset,
			Sheet:     importSheet,
			BatchSize: cfg.Import.BatchSize,
		}

		im := importer.New(st)
		var res importer.Result
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			f, err := os.Open(path)
			if err != nil {
				return eris.Wrapf(err, "open %s", path)
			}
			defer f.Close()
			res, err = im.ImportCSV(cmd.Context(), f, opts)
			if err != nil {
				return err
			}
		case ".xlsx":
			res, err = im.ImportXLSX(cmd.Context(), path, opts)
			if err != nil {
				return err
			}
		default:
			return eris.Errorf("unsupported file type: %s", path)
		}

		zap.L().Info("import complete",
			zap.String("file", path),
			zap.String("kind", importKind),
			zap.Int64("rows", res.Rows),
			zap.Int64("inserted", res.Inserted),
			zap.Int64("skipped", res.Skipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importKind, "kind", "properties", "record type: properties or activities")
	importCmd.Flags().StringVar(&importCharset, "charset", "", "source encoding, e.g. windows-1252 (default from config)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().IntVar(&importBatch, "batch-size", 0, "rows per insert batch (default from config)")
	rootCmd.AddCommand(importCmd)
}
