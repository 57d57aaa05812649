package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

type BasicStruct struct {
	X int
	y string
}

func TestConsoleOutputFormat(t *testing.T) {
	// A logger object that will write to the `notStdout` buffer.
	notStdout := &bytes.Buffer{}
	impl := newImpl("impl", DEBUG, true, NewWriterAppender(notStdout))

	impl.Info("impl Info log")
	line, err := notStdout.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	parts := strings.Split(strings.TrimSuffix(line, "\n"), "\t")
	test.That(t, parts, test.ShouldHaveLength, 5)
	test.That(t, parts[1], test.ShouldContainSubstring, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "impl")
	test.That(t, parts[3], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "impl Info log")

	impl.Warn("impl ", 2, " parts")
	line, err = notStdout.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	test.That(t, line, test.ShouldContainSubstring, "impl 2 parts")

	impl.Infow("impl logw", "key", "value", "BasicStruct", BasicStruct{1, "alice"})
	line, err = notStdout.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	test.That(t, line, test.ShouldContainSubstring, "impl logw")
	test.That(t, line, test.ShouldContainSubstring, `"key": "value"`)
	test.That(t, line, test.ShouldContainSubstring, `"BasicStruct": {"X":1}`)
}

func TestLevelFiltering(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)

	logger.Debugw("dropped")
	logger.Infow("dropped", "k", 1)
	logger.Warnw("kept", "k", 2)
	logger.Error("kept ", 3)

	entries := observed.All()
	test.That(t, entries, test.ShouldHaveLength, 2)
	test.That(t, entries[0].Message, test.ShouldEqual, "kept")
	test.That(t, entries[0].Level, test.ShouldEqual, zapcore.WarnLevel)
	test.That(t, entries[0].ContextMap()["k"], test.ShouldEqual, int64(2))
	test.That(t, entries[1].Message, test.ShouldEqual, "kept 3")
	test.That(t, entries[1].Level, test.ShouldEqual, zapcore.ErrorLevel)
}

func TestSublogger(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	sub := logger.Sublogger("compositor")
	subsub := sub.Sublogger("pipeline")

	sub.Info("from sub")
	subsub.Infow("from subsub", "unpaired")

	entries := observed.All()
	test.That(t, entries, test.ShouldHaveLength, 2)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "compositor")
	test.That(t, entries[1].LoggerName, test.ShouldEqual, "compositor.pipeline")
	test.That(t, entries[1].ContextMap()["unpaired"], test.ShouldNotBeNil)

	// Changing a sublogger's level leaves the parent alone.
	sub.SetLevel(ERROR)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
}

func TestAddAppenderReachesSubloggers(t *testing.T) {
	logger := NewBlankLogger("root")
	sub := logger.Sublogger("nats")

	var buf bytes.Buffer
	logger.AddAppender(NewWriterAppender(&buf))
	sub.Infow("after add", "n", 1)

	test.That(t, buf.String(), test.ShouldContainSubstring, "root.nats")
	test.That(t, buf.String(), test.ShouldContainSubstring, "after add")
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"", INFO},
		{"Warning", WARN},
		{" error ", ERROR},
	} {
		t.Run(tc.in, func(t *testing.T) {
			level, err := LevelFromString(tc.in)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, level, test.ShouldEqual, tc.expected)
		})
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown log level")
}

func TestFileAppender(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "queryvis.log")
	appender := NewFileAppender(fn, 0)
	logger := NewBlankLogger("file")
	logger.AddAppender(appender)

	logger.Infow("written to disk", "run", 3)
	logger.Debugw("also kept")
	test.That(t, logger.Sync(), test.ShouldBeNil)
	test.That(t, appender.Close(), test.ShouldBeNil)

	//nolint:gosec
	data, err := os.ReadFile(fn)
	test.That(t, err, test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	test.That(t, lines, test.ShouldHaveLength, 2)
	test.That(t, lines[0], test.ShouldContainSubstring, "written to disk")
	test.That(t, lines[0], test.ShouldContainSubstring, `"run": 3`)
	test.That(t, lines[1], test.ShouldContainSubstring, "also kept")
}
