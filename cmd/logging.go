package cmd

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// time format for logging
const logTimeFormat = "2006-01-02 15:04:05"

// streamHook writes warnings and errors to errOut and everything else to
// out. The logger's own output is discarded once the hook is installed.
type streamHook struct {
	out    io.Writer
	errOut io.Writer
}

func (h *streamHook) Levels() []log.Level {
	return log.AllLevels
}

func (h *streamHook) Fire(e *log.Entry) error {
	line, err := e.Logger.Formatter.Format(e)
	if err != nil {
		return err
	}
	w := h.out
	if e.Level <= log.WarnLevel {
		w = h.errOut
	}
	_, err = w.Write(line)
	return err
}

// setupLogging configures logger for level and format and splits its output
// between out and errOut.
func setupLogging(logger *log.Logger, level, format string, out, errOut io.Writer) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)

	switch format {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{TimestampFormat: logTimeFormat})
	default:
		logger.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: logTimeFormat,
			DisableColors:   true,
		})
	}

	logger.SetOutput(io.Discard)
	logger.ReplaceHooks(make(log.LevelHooks))
	logger.AddHook(&streamHook{out: out, errOut: errOut})
	return nil
}
