package personaquiz

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LLMLogger writes a plain-text transcript of every model interaction of one
// quiz session
type LLMLogger struct {
	file      *os.File
	path      string
	mu        sync.Mutex
	sessionID string
}

// NewLLMLogger creates the transcript file <dir>/<sessionID>.log
func NewLLMLogger(dir, sessionID string, profile UserProfile) (*LLMLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", sessionID))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}

	logger := &LLMLogger{
		file:      file,
		path:      filename,
		sessionID: sessionID,
	}

	logger.Logf("=== Personality Quiz Transcript ===\n")
	logger.Logf("Session ID: %s\n", sessionID)
	logger.Logf("Age: %d\n", profile.Age)
	logger.Logf("Occupation: %s\n", profile.Occupation)
	if len(profile.Interests) > 0 {
		logger.Logf("Interests: %s\n", strings.Join(profile.Interests, ", "))
	}
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("===================================\n\n")

	return logger, nil
}

// Path returns the transcript file name
func (ll *LLMLogger) Path() string {
	return ll.path
}

// Logf writes a formatted entry with timestamp
func (ll *LLMLogger) Logf(format string, args ...interface{}) {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.logf(format, args...)
}

func (ll *LLMLogger) logf(format string, args ...interface{}) {
	if ll.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(ll.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	ll.file.Sync()
}

// LogLLMRequest logs a request of the given response shape
func (ll *LLMLogger) LogLLMRequest(shape Shape, system, user string) {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.logf("=== LLM REQUEST (%s) ===\n", shape)
	ll.logf("System:\n%s\n", strings.TrimSpace(system))
	ll.logf("User:\n%s\n", strings.TrimSpace(user))
	ll.logf("=====================\n\n")
}

// LogLLMResponse logs a raw response body
func (ll *LLMLogger) LogLLMResponse(shape Shape, response string) {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.logf("=== LLM RESPONSE (%s) ===\n", shape)
	ll.logf("Response:\n%s\n", response)
	ll.logf("======================\n\n")
}

// LogLLMError logs a failed call
func (ll *LLMLogger) LogLLMError(shape Shape, err error) {
	ll.Logf("=== LLM ERROR (%s) === %v\n\n", shape, err)
}

// LogItemSettled logs how a template's generation concluded
func (ll *LLMLogger) LogItemSettled(index, templateID int, source string) {
	ll.Logf("Item %d (template %d): settled from %s\n", index, templateID, source)
}

// Close closes the transcript file
func (ll *LLMLogger) Close() error {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if ll.file != nil {
		ll.logf("=== Session Transcript Closed ===\n")
		ll.logf("Completed: %s\n", time.Now().Format(time.RFC3339))
		err := ll.file.Close()
		ll.file = nil
		return err
	}
	return nil
}
