package logging_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/kurihiro0119/github-org-backup/internal/logging"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		name        string
		level       string
		format      string
		expectError bool
		enabled     zapcore.Level
	}{
		{name: "console_info", level: "info", format: "console", enabled: zapcore.InfoLevel},
		{name: "json_debug", level: "DEBUG", format: "json", enabled: zapcore.DebugLevel},
		{name: "bad_level", level: "trace", format: "json", expectError: true},
		{name: "bad_format", level: "info", format: "xml", expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger, err := logging.NewLogger(tc.level, tc.format)
			if tc.expectError {
				require.Error(t, err)
				require.Nil(t, logger)
				return
			}
			require.NoError(t, err)
			require.True(t, logger.Core().Enabled(tc.enabled))
			require.False(t, logger.Core().Enabled(tc.enabled-1))
		})
	}
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, logging.OrNop(nil))
}
