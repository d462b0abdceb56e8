package logging

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"pathguard/pkg/fileops"
)

func TestDebug_DisabledInProduction(t *testing.T) {
	var buf bytes.Buffer

	logger := log.NewWithOptions(&buf, log.Options{
		ReportTimestamp: false,
		ReportCaller:    false,
	})
	logger.SetLevel(log.DebugLevel)

	appLogger := &AppLogger{
		logger: logger,
		debug:  false,
	}

	appLogger.Debug("debug message that should not appear")
	appLogger.LogToolCall("pathguard_read", map[string]interface{}{"path": "x"})

	output := buf.String()
	if strings.Contains(output, "debug message that should not appear") {
		t.Errorf("Expected debug message to be suppressed in production mode, got: %s", output)
	}
	if strings.Contains(output, "Tool call") {
		t.Errorf("Expected tool call logging to be suppressed in production mode, got: %s", output)
	}
}

func TestLogRejection(t *testing.T) {
	t.Run("path-safety kind is a warning", func(t *testing.T) {
		logger, buf := NewTestLogger()

		_, err := fileops.JoinSafePath(t.TempDir(), "../../etc/passwd")
		logger.LogRejection("resolve", "../../etc/passwd", err)

		output := buf.String()
		if !strings.Contains(output, "Path rejected") {
			t.Errorf("Expected 'Path rejected', got: %s", output)
		}
		if !strings.Contains(output, string(fileops.KindTraversal)) {
			t.Errorf("Expected kind in output, got: %s", output)
		}
		if !strings.Contains(output, "WARN") {
			t.Errorf("Expected warn level, got: %s", output)
		}
	})

	t.Run("other errors are errors", func(t *testing.T) {
		logger, buf := NewTestLogger()

		logger.LogRejection("write", "a.txt", errors.New("disk full"))

		output := buf.String()
		if !strings.Contains(output, "Operation failed") || !strings.Contains(output, "disk full") {
			t.Errorf("Expected failure with cause, got: %s", output)
		}
		if !strings.Contains(output, "ERRO") {
			t.Errorf("Expected error level, got: %s", output)
		}
	})

	t.Run("nil error is ignored", func(t *testing.T) {
		logger, buf := NewTestLogger()
		logger.LogRejection("read", "a.txt", nil)
		if buf.Len() != 0 {
			t.Errorf("Expected no output, got: %s", buf.String())
		}
	})

	t.Run("wrapped kind is still detected", func(t *testing.T) {
		logger, buf := NewTestLogger()
		err := fmt.Errorf("loading config: %w", fileops.ValidateConfigFilePermissions(filepath.Join(t.TempDir(), "none")))
		logger.LogRejection("load", "none", err)
		if !strings.Contains(buf.String(), string(fileops.KindNotFound)) {
			t.Errorf("Expected NOT_FOUND kind, got: %s", buf.String())
		}
	})
}

func TestLogToolCall(t *testing.T) {
	logger, buf := NewTestLogger()

	logger.LogToolCall("pathguard_resolve", map[string]interface{}{"root": "data", "path": "a/b"})

	output := buf.String()
	if !strings.Contains(output, "Tool call") {
		t.Errorf("Expected log output to contain 'Tool call', got: %s", output)
	}
	if !strings.Contains(output, "pathguard_resolve") {
		t.Errorf("Expected log output to contain tool name, got: %s", output)
	}
	if !strings.Contains(output, "a/b") {
		t.Errorf("Expected log output to contain arguments, got: %s", output)
	}
}

func TestDebugObject(t *testing.T) {
	logger, buf := NewTestLogger()

	testObj := struct {
		Name  string
		Value int
	}{
		Name:  "test",
		Value: 42,
	}

	logger.DebugObject("test_object", testObj)

	output := buf.String()
	if !strings.Contains(output, "Object dump") {
		t.Errorf("Expected log output to contain 'Object dump', got: %s", output)
	}
	if !strings.Contains(output, "test_object") {
		t.Errorf("Expected log output to contain object name, got: %s", output)
	}
	if !strings.Contains(output, "42") {
		t.Errorf("Expected log output to contain object data, got: %s", output)
	}
}

func TestLogPerformance(t *testing.T) {
	logger, buf := NewTestLogger()

	start := time.Now()
	time.Sleep(1 * time.Millisecond)
	logger.LogPerformance("test_operation", start)

	output := buf.String()
	if !strings.Contains(output, "Performance") {
		t.Errorf("Expected log output to contain 'Performance', got: %s", output)
	}
	if !strings.Contains(output, "test_operation") {
		t.Errorf("Expected log output to contain operation name, got: %s", output)
	}
	if !strings.Contains(output, "duration") {
		t.Errorf("Expected log output to contain duration, got: %s", output)
	}
}

func TestPackageLevelFunctions(t *testing.T) {
	defaultLogger = nil
	once = sync.Once{}
	t.Cleanup(func() {
		defaultLogger = nil
		once = sync.Once{}
	})

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DEBUG", "1")

	Info("package level info")
	Warn("package level warn")
	Error("package level error")
	Debug("package level debug")
	LogRejection("read", "x", errors.New("boom"))
	LogPerformance("package_operation", time.Now())

	info, err := os.Stat(filepath.Join(dir, "pathguard.log"))
	if err != nil {
		t.Fatalf("Expected debug log file: %v", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		t.Errorf("Debug log is readable by others: %04o", info.Mode().Perm())
	}
}

func TestGetDefault_Singleton(t *testing.T) {
	defaultLogger = nil
	once = sync.Once{}

	logger1 := GetDefault()
	logger2 := GetDefault()

	if logger1 != logger2 {
		t.Error("Expected GetDefault() to return the same instance (singleton)")
	}
}

func BenchmarkInfo(b *testing.B) {
	logger, _ := NewTestLogger()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message", "iteration", i)
	}
}

func BenchmarkDebug(b *testing.B) {
	logger, _ := NewTestLogger()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug("benchmark debug message", "iteration", i)
	}
}
