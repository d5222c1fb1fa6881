package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func redirectLogsToGivenBuffer(buf *bytes.Buffer, level Severity) {
	programLevel := programLevelVar(level)
	defaultLoggerFactory = &loggerFactory{format: FormatText, level: level, programLevel: programLevel}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, programLevel, "TestLogs: "))
}

func TestSeverityFiltering(t *testing.T) {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, WARNING)

	Infof("www.infoExample.com")
	assert.Empty(t, buf.String(), "INFO should be suppressed at WARNING level")

	Warnf("www.warningExample.com")
	assert.Regexp(t, regexp.MustCompile(`severity=WARNING message="TestLogs: www.warningExample.com"`), buf.String())
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	programLevel := programLevelVar(INFO)
	defaultLoggerFactory = &loggerFactory{format: FormatJSON, level: INFO, programLevel: programLevel}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(&buf, programLevel, ""))

	Infof("hello")
	assert.Contains(t, buf.String(), `"severity":"INFO"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestParseSeverityRoundTrip(t *testing.T) {
	for _, s := range []Severity{TRACE, DEBUG, INFO, WARNING, ERROR} {
		assert.Equal(t, s, ParseSeverity(s.String()))
	}
}
