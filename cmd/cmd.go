// Package cmd implements the s3import command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ThierryZhou/go-s3import/config"
	"github.com/ThierryZhou/go-s3import/crosswalk"
	"github.com/ThierryZhou/go-s3import/ingest"
	"github.com/ThierryZhou/go-s3import/metrics"
	"github.com/ThierryZhou/go-s3import/registry"
	"github.com/ThierryZhou/go-s3import/s3"
)

const metricsJob = "s3import"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "s3import [flags] <config-file>",
		Short: "Import the latest snapshot of metadata records from S3 into a registry",
		Long: `s3import reads <prefix>/latest.txt from the configured bucket, lists every
record of the snapshot it names, optionally converts each record with a
crosswalk template and posts it to <base.url>/registry/import/import_s3/.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			return run(c.Context(), args[0], c.Flags(), c.OutOrStdout(), c.ErrOrStderr())
		},
	}

	f := root.Flags()
	f.String("log-level", "", "log level: debug, info, warn, error (overrides log.level)")
	f.String("log-format", "", "log format: text or json (overrides log.format)")
	f.Bool("dry-run", false, "transform records without uploading them")
	f.Bool("stop-on-reject", false, "abort the run on the first rejected record")

	return root
}

// Main runs the command and exits non-zero on failure.
func Main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		var ierr *ingest.Error
		if !errors.As(err, &ierr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, path string, flags *pflag.FlagSet, out, errOut io.Writer) error {
	cfg, err := config.Load(path, flags)
	if err != nil {
		err = ingest.Wrap(ingest.KindConfig, "load config", err)
		fmt.Fprintf(errOut, "%+v\n", err)
		return err
	}

	logger := log.StandardLogger()
	if err := setupLogging(logger, cfg.LogLevel, cfg.LogFormat, out, errOut); err != nil {
		err = ingest.Wrap(ingest.KindConfig, "setup logging", err)
		fmt.Fprintf(errOut, "%+v\n", err)
		return err
	}

	l := logger.WithField("run", uuid.NewString())
	printConfig(l, cfg)

	err = importSnapshot(ctx, l, cfg)
	if err != nil {
		l.Errorf("%+v", err)
	}
	return err
}

// loadTransformer compiles the configured crosswalk. It runs before the
// object store is touched so a broken template never starts a listing.
func loadTransformer(cfg *config.Config) (*crosswalk.Transformer, error) {
	if cfg.Crosswalk == "" {
		return nil, nil
	}
	t, err := crosswalk.Load(cfg.Crosswalk)
	if err != nil {
		return nil, ingest.Wrap(ingest.KindTransform, "compile crosswalk", err)
	}
	return t, nil
}

func importSnapshot(ctx context.Context, l log.FieldLogger, cfg *config.Config) error {
	transformer, err := loadTransformer(cfg)
	if err != nil {
		return err
	}

	opts := []s3.OptionFunc{
		s3.WithRegion(cfg.Region),
		s3.WithPageSize(cfg.PageSize),
		s3.WithGunzip(cfg.Gunzip),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, s3.WithS3Address(cfg.Endpoint))
	}
	if cfg.StaticKeys() {
		opts = append(opts, s3.WithS3Keys(cfg.AccessKey, cfg.SecretKey))
	}
	store, err := s3.NewS3Client(ctx, opts...)
	if err != nil {
		return ingest.Wrap(ingest.KindStore, "connect object store", err)
	}

	var uploader ingest.Uploader
	if !cfg.DryRun {
		up, err := registry.NewUploader(registry.Config{
			BaseURL:   cfg.BaseURL,
			SourceID:  cfg.SourceID,
			SessionID: cfg.SessionID,
			Timeout:   cfg.HTTPTimeout,
			Rate:      cfg.UploadRate,
		})
		if err != nil {
			return ingest.Wrap(ingest.KindConfig, "create uploader", err)
		}
		l.Infof("Import endpoint: %s", up.Endpoint())
		uploader = up
	}

	m := metrics.NewRun(cfg.SourceID)
	d := &ingest.Driver{
		Bucket:       cfg.Bucket,
		Prefix:       cfg.Prefix,
		Store:        store,
		Transformer:  transformer,
		Uploader:     uploader,
		Metrics:      m,
		StopOnReject: cfg.StopOnReject,
		DryRun:       cfg.DryRun,
		Log:          l,
	}

	sum, err := d.Run(ctx)
	printSummary(l, sum, err)

	if cfg.Pushgateway != "" {
		if perr := m.Push(ctx, cfg.Pushgateway, metricsJob); perr != nil {
			l.Warn(perr)
		}
	}

	return err
}
