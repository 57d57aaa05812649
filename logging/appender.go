package logging

import (
	"io"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Appender is an output for log entries. zapcore.Core implementations satisfy it.
type Appender interface {
	Write(zapcore.Entry, []zapcore.Field) error
	Sync() error
}

// ConsoleAppender writes console encoded entries to a writer.
type ConsoleAppender struct {
	io.Writer
	encoder zapcore.Encoder
}

// NewStdoutAppender returns an appender writing to stdout.
func NewStdoutAppender() ConsoleAppender {
	return NewWriterAppender(os.Stdout)
}

// NewWriterAppender returns an appender writing to the given writer.
func NewWriterAppender(writer io.Writer) ConsoleAppender {
	return ConsoleAppender{writer, zapcore.NewConsoleEncoder(NewEncoderConfig())}
}

// Write outputs the log entry to the underlying writer.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	_, err = appender.Writer.Write(buf.Bytes())
	return err
}

// Sync is a no-op unless the writer is a file.
func (appender ConsoleAppender) Sync() error {
	if f, ok := appender.Writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Sync()
	}
	return nil
}

// DefaultMaxLogFileSizeMB is the size at which a log file is rotated when none is given.
const DefaultMaxLogFileSizeMB = 100

// FileAppender writes console encoded entries to a log file that is rotated by size.
// Two compressed backups are kept.
type FileAppender struct {
	ConsoleAppender
	rotator *lumberjack.Logger
}

// NewFileAppender returns an appender writing to filename. A non-positive maxSizeMB uses
// DefaultMaxLogFileSizeMB.
func NewFileAppender(filename string, maxSizeMB int) *FileAppender {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxLogFileSizeMB
	}
	rotator := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: 2,
		Compress:   true,
	}
	return &FileAppender{ConsoleAppender: NewWriterAppender(rotator), rotator: rotator}
}

// Sync is a no-op; every write goes straight to the file.
func (appender *FileAppender) Sync() error {
	return nil
}

// Close closes the current log file.
func (appender *FileAppender) Close() error {
	return appender.rotator.Close()
}

func callerToString(caller *zapcore.EntryCaller) string {
	return caller.TrimmedPath()
}
