package logger

import (
	"testing"

	"github.com/gateway/multiapi/common/config"
)

func TestSetupLoggerDebugMode(t *testing.T) {
	originalDebugEnabled := config.DebugEnabled
	t.Cleanup(func() {
		config.DebugEnabled = originalDebugEnabled
		ResetSetupLogOnceForTests()
	})

	config.DebugEnabled = true
	ResetSetupLogOnceForTests()
	SetupLogger()
	Logger.Debug("debug mode smoke test")
}

func TestSetupLoggerIsIdempotent(t *testing.T) {
	t.Cleanup(ResetSetupLogOnceForTests)

	ResetSetupLogOnceForTests()
	SetupLogger()
	first := Logger
	SetupLogger()
	if Logger != first {
		t.Fatalf("SetupLogger should be a no-op after the first call")
	}
}
