package log

import (
	"fmt"
	"io"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/nfd/internal/config"
)

// MultiWriter fans each write out to every writer. A failing writer does
// not stop the others.
type MultiWriter struct {
	writers []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0, 2)}
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		if _, e := w.Write(p); e != nil {
			err = e
		}
	}
	return len(p), err
}

// createFileWriter creates a lumberjack file writer for log rotation.
func createFileWriter(fc config.FileOutputConfig) (io.Writer, error) {
	if fc.Path == "" {
		return nil, fmt.Errorf("file output requires 'path' field")
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.Rotation.MaxSizeMB,  // megabytes
		MaxBackups: fc.Rotation.MaxBackups, // number of backups
		MaxAge:     fc.Rotation.MaxAgeDays, // days
		Compress:   fc.Rotation.Compress,
	}, nil
}
