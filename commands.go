package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/felo/eml-extract/internal/config"
	"github.com/felo/eml-extract/internal/db"
	"github.com/felo/eml-extract/internal/handlers"
	"github.com/felo/eml-extract/internal/indexer"
	"github.com/felo/eml-extract/internal/parser"
	"github.com/felo/eml-extract/internal/projector"
	"github.com/spf13/cobra"
)

// Output files written by the extract command.
const (
	fieldsFile = "fields.json"
	textFile   = "message.txt"
	htmlFile   = "message.html"
)

func newExtractCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file.eml|->",
		Short: "Write the fields and bodies of one message to files",
		Long: "Parses one message (or standard input when the path is -) and writes\n" +
			fieldsFile + ", " + textFile + " and " + htmlFile + " into the output directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			printOut, err := cmd.Flags().GetBool("print")
			if err != nil {
				return err
			}
			return runExtract(cmd.InOrStdin(), cmd.OutOrStdout(), args[0], cfg, printOut)
		},
	}
	config.RegisterExtractFlags(cmd)
	cmd.Flags().Bool("print", false, "Also print the fields and bodies to standard output")
	return cmd
}

// runExtract writes the output files even when a required field is missing and
// reports that afterwards, so partial results are never lost.
func runExtract(stdin io.Reader, stdout io.Writer, path string, cfg *config.Config, printOut bool) error {
	opts := indexer.OptionsFrom(cfg)

	var msg *parser.Message
	var err error
	if path == "-" {
		msg, err = parser.ParseEML(stdin, opts.Parse)
	} else {
		msg, err = parser.ParseEMLFile(path, opts.Parse)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, w := range msg.Warnings() {
		slog.Warn("parse warning", "source", path, "warning", w)
	}

	doc, projErr := projector.Project(msg, opts.Policy)
	fields, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	text, html := projector.ExtractBodies(msg, opts.Bodies)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	outputs := []struct {
		name string
		data []byte
	}{
		{fieldsFile, append(fields, '\n')},
		{textFile, []byte(text)},
		{htmlFile, []byte(html)},
	}
	for _, out := range outputs {
		if err := os.WriteFile(filepath.Join(cfg.OutputDir, out.name), out.data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out.name, err)
		}
	}

	if printOut {
		fmt.Fprintf(stdout, "%s\n\n%s\n\n%s\n", fields, text, html)
	}

	return projErr
}

func newIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the .eml and .mbox files of the emails directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			database, err := db.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := indexer.NewIndexer(database, cfg.EmailsPath, log).
				WithConcurrency(cfg.Workers).
				WithOptions(indexer.OptionsFrom(cfg)).
				IndexAll(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d files, %d new, %d skipped, %d failed (%s) in %s\n",
				result.TotalFound, result.NewIndexed, result.Skipped, result.Failed,
				humanize.Bytes(uint64(result.Bytes)), result.Duration.Round(time.Millisecond))
			for _, f := range result.FailedFiles {
				fmt.Fprintf(cmd.OutOrStdout(), "failed: %s\n", f)
			}
			return nil
		},
	}
	config.RegisterIndexFlags(cmd)
	return cmd
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Index the emails directory and serve the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	config.RegisterServeFlags(cmd)
	config.RegisterIndexFlags(cmd)
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	log.Info("database opened", "path", cfg.DBPath, "emails", cfg.EmailsPath)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(cfg.EmailsPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(cfg.EmailsPath, 0o755); err != nil {
			return fmt.Errorf("create emails directory: %w", err)
		}
		log.Info("created emails directory; place .eml or .mbox files there and POST /scan", "path", cfg.EmailsPath)
	} else {
		result, err := indexer.NewIndexer(database, cfg.EmailsPath, log).
			WithConcurrency(cfg.Workers).
			WithOptions(indexer.OptionsFrom(cfg)).
			IndexAll(ctx)
		if err != nil {
			log.Warn("indexing failed", "error", err)
		} else {
			log.Info("indexing complete", "new", result.NewIndexed, "skipped", result.Skipped, "failed", result.Failed)
		}
	}

	h := handlers.New(database, cfg, log)
	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      h.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // SSE connections stay open
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "url", cfg.URL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if cfg.OpenBrowser {
		time.Sleep(500 * time.Millisecond) // Give server time to start
		if err := openBrowser(cfg.URL() + "/messages"); err != nil {
			log.Warn("failed to open browser", "url", cfg.URL(), "error", err)
		}
	}

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// openBrowser opens the default browser to the specified URL
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}
