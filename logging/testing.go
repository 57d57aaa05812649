package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender routes entries through tb.Log so that output is attributed to the test that
// produced it.
type testAppender struct {
	tb     testing.TB
	fields zapcore.Encoder
}

// NewTestAppender returns an appender that logs through tb.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{
		tb:     tb,
		fields: zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true}),
	}
}

// Write logs time, level, logger, caller, message and the fields as a JSON object,
// tab separated.
func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	cols := []string{
		entry.Time.Format(DefaultTimeFormatStr),
		strings.ToUpper(entry.Level.String()),
		entry.LoggerName,
	}
	if entry.Caller.Defined {
		cols = append(cols, callerToString(&entry.Caller))
	}
	cols = append(cols, entry.Message)

	var err error
	if len(fields) > 0 {
		// an empty entry leaves only the fields in the encoded object
		buf, encErr := tapp.fields.EncodeEntry(zapcore.Entry{}, fields)
		if encErr == nil {
			cols = append(cols, buf.String())
			buf.Free()
		}
		err = encErr
	}
	tapp.tb.Log(strings.Join(cols, "\t"))
	return err
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}
