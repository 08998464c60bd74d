package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saldang/grezzi/internal/pipeline"
)

var (
	cleanFiles     []string
	cleanTableID   string
	cleanNoForward bool
	cleanRemove    bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean lead files and forward them to NocoDB",
	Long:  "Runs every --file (or every .xlsx/.csv in pipeline.upload_dir when none is given) through the cleaning stages and prints one JSON summary per file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "clean", !cleanNoForward)
		if err != nil {
			return err
		}

		files := cleanFiles
		if len(files) == 0 {
			files, err = uploadedFiles(cfg.Pipeline.UploadDir)
			if err != nil {
				return err
			}
		}
		if len(files) == 0 {
			zap.L().Info("no input files found", zap.String("dir", cfg.Pipeline.UploadDir))
			return nil
		}

		remove := cfg.Pipeline.RemoveInput || cleanRemove
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		var failed int
		for _, f := range files {
			res, err := env.Driver.Run(ctx, pipeline.Request{
				File:        f,
				TableID:     cleanTableID,
				RemoveInput: remove,
			})
			if err != nil {
				failed++
				if res == nil {
					res = &pipeline.Result{File: f}
				}
			}
			if encErr := enc.Encode(res); encErr != nil {
				return eris.Wrap(encErr, "encode result")
			}
		}

		zap.L().Info("clean complete",
			zap.Int("files", len(files)),
			zap.Int("failed", failed),
			zap.Int64("removed_total", env.Driver.RemovedTotal()),
		)
		if failed > 0 {
			return eris.Errorf("%d of %d files failed", failed, len(files))
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().StringSliceVar(&cleanFiles, "file", nil, "input .xlsx or .csv file (repeatable; default: every file in pipeline.upload_dir)")
	cleanCmd.Flags().StringVar(&cleanTableID, "table-id", "", "NocoDB table id to forward clean records to")
	cleanCmd.Flags().BoolVar(&cleanNoForward, "no-forward", false, "skip forwarding to NocoDB")
	cleanCmd.Flags().BoolVar(&cleanRemove, "remove-input", false, "delete each input file after it is processed")
	rootCmd.AddCommand(cleanCmd)
}

// uploadedFiles lists the spreadsheet and CSV files in dir, sorted by name.
func uploadedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "read upload dir %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isInputFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func isInputFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".csv":
		return true
	}
	return false
}
