package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DevelopmentUsesTextFormatter(t *testing.T) {
	logger := New("debug", "development")
	require.NotNil(t, logger)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestNew_ProductionUsesJSONFormatter(t *testing.T) {
	logger := New("warn", "production")
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	logger := New("verbose", "production")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNew_EnvironmentCaseInsensitive(t *testing.T) {
	logger := New("info", "Development")
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}
