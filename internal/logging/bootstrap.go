package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures process-wide logging
type Options struct {
	Level      string
	File       string // Empty disables file output
	MaxSizeMB  int
	MaxBackups int
	Stdout     io.Writer // Defaults to os.Stdout
}

// Bootstrap owns the one-time logging setup for a process. The first Init
// wins; later calls return the same Manager.
type Bootstrap struct {
	once    sync.Once
	manager *Manager
	file    *lumberjack.Logger
	err     error
}

// Init builds the Manager, attaches the rotating file writer and installs the
// standard log interceptor. It is safe to call more than once.
func (b *Bootstrap) Init(opts Options) (*Manager, error) {
	b.once.Do(func() {
		stdout := opts.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		outputs := []io.Writer{stdout}

		if opts.File != "" {
			if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
				b.err = err
			} else {
				if opts.MaxSizeMB <= 0 {
					opts.MaxSizeMB = 5
				}
				if opts.MaxBackups <= 0 {
					opts.MaxBackups = 5
				}
				b.file = &lumberjack.Logger{
					Filename:   opts.File,
					MaxSize:    opts.MaxSizeMB,
					MaxBackups: opts.MaxBackups,
				}
				outputs = append(outputs, b.file)
			}
		}

		b.manager = NewManager(opts.Level, outputs...)
		b.manager.InstallLogInterceptor()
		b.manager.Info("logging", "Logging configured", map[string]interface{}{
			"level": b.manager.Level(),
			"file":  opts.File,
		})
	})
	return b.manager, b.err
}

// Manager returns the initialized manager, or nil before Init.
func (b *Bootstrap) Manager() *Manager {
	return b.manager
}

// Close flushes and closes the log file, if any.
func (b *Bootstrap) Close() error {
	if b.file == nil {
		return nil
	}
	return b.file.Close()
}
