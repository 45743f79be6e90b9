package formatter

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePathParsing(t *testing.T) {

	testCases := []struct {
		filePath         string
		expectedFileName string
	}{
		// locally cloned repo
		{
			filePath:         "/home/user/src/tunnelcore/formatter/formatter.go",
			expectedFileName: "formatter/formatter.go",
		},
		// locally cloned repo with duplicated name in path
		{
			filePath:         "/home/user/tunnelcore/repos/tunnelcore/server/server.go",
			expectedFileName: "server/server.go",
		},
		// external package
		{
			filePath:         "/root/go/pkg/mod/github.com/sirupsen/logrus@v1.9.3/entry.go",
			expectedFileName: "logrus@v1.9.3/entry.go",
		},
	}

	hook := NewContextHook()

	for _, testCase := range testCases {
		parsedString := hook.parseSrc(testCase.filePath)
		assert.Equal(t, testCase.expectedFileName, parsedString, "Parsed filepath does not match expected for %s", testCase.filePath)
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	SetTextFormatter(logger, true)

	logger.WithField("peer", "abcdefgh").WithField("iface", "wg0").Warn("route removal failed")

	line := buf.String()
	require.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, " WARN formatter/hook_test.go:")
	assert.True(t, strings.HasSuffix(line, ": route removal failed iface=wg0 peer=abcdefgh\n"), line)
}

func TestTextFormatter_QuotesAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	SetTextFormatter(logger, false)

	logger.WithError(errors.New("exit status 2")).WithField("cmd", "").Error("ip failed")

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "ERRO "), line)
	assert.Contains(t, line, ` cmd="" error="exit status 2"`)
}

func TestTextFormatter_UnknownLevel(t *testing.T) {
	f := NewTextFormatter()
	f.DisableTimestamp = true

	out, err := f.Format(&logrus.Entry{Level: logrus.Level(42), Message: "odd", Data: logrus.Fields{}})
	require.NoError(t, err)
	assert.Equal(t, "UNKN odd\n", string(out))
}

func TestContextHookRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	SetTextFormatter(logger, true)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	logger.WithContext(ctx).Info("handled")

	assert.Contains(t, buf.String(), ": handled requestID=req-1\n")
}
