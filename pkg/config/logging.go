package config

import (
	"github.com/XiaoConstantine/evo-go/pkg/logging"
)

// BuildLogger constructs a logger from the logging configuration. The caller
// owns the returned logger and should install it with logging.SetLogger.
func (c LoggingConfig) BuildLogger() (*logging.Logger, error) {
	outputs := []logging.Output{
		logging.NewConsoleOutput(c.UseStderr, logging.WithColor(c.Color)),
	}
	if c.File != "" {
		fileOut, err := logging.NewFileOutput(c.File)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, fileOut)
	}
	return logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(c.Level),
		Outputs:  outputs,
	}), nil
}
