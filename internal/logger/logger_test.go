package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	cases := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"WARN":    logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"verbose": logrus.InfoLevel,
	}
	for in, want := range cases {
		SetLevel(in)
		assert.Equal(t, want, Logger.GetLevel(), in)
	}
}

func TestSetFormat(t *testing.T) {
	defer SetFormat("json")

	SetFormat("text")
	assert.IsType(t, &logrus.TextFormatter{}, Logger.Formatter)
	SetFormat("json")
	assert.IsType(t, &logrus.JSONFormatter{}, Logger.Formatter)
}
