// Progress lines printed around an import run

package cmd

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ThierryZhou/go-s3import/config"
	"github.com/ThierryZhou/go-s3import/ingest"
)

// mask hides all but the last four characters of a secret.
func mask(secret string) string {
	const visible = 4
	if len(secret) <= visible {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-visible) + secret[len(secret)-visible:]
}

// printConfig logs every resolved configuration value.
func printConfig(l log.FieldLogger, c *config.Config) {
	l.Infof("Source: %s", c.SourceID)
	l.Infof("Base URL: %s", c.BaseURL)
	l.Infof("Session Id: %s", mask(c.SessionID))
	l.Infof("S3 Bucket: %s", c.Bucket)
	l.Infof("S3 Prefix: %s", c.Prefix)
	if c.Endpoint != "" {
		l.Infof("S3 Endpoint: %s", c.Endpoint)
	}
	if c.Gunzip {
		l.Info("S3 Gunzip: .gz records are inflated")
	}
	if c.Crosswalk != "" {
		l.Infof("Crosswalk: %s", c.Crosswalk)
	}
	if c.DryRun {
		l.Info("Dry run: records will not be uploaded")
	}
}

// printSummary logs the outcome of a run, failed or not.
func printSummary(l log.FieldLogger, sum ingest.Summary, err error) {
	entry := l.WithFields(log.Fields{
		"pages":    sum.Pages,
		"keys":     sum.Keys,
		"uploaded": sum.Uploaded,
		"rejected": sum.Rejected,
		"skipped":  sum.Skipped,
	})
	if err != nil {
		entry.Errorf("Import aborted (%s)", ingest.KindOf(err))
		return
	}
	if sum.Rejected > 0 {
		entry.Warnf("Import of %s completed with %d rejected records", sum.Snapshot, sum.Rejected)
		return
	}
	entry.Infof("Import of %s completed", sum.Snapshot)
}
