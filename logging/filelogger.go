// Package logging writes the per-run directory: captured engine output per
// feature and a combined log.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
)

const (
	RunDirectoryPrefix = "testrun-"
	FeaturesDirName    = "features"
	AllLogsFilename    = "all.log"
)

// FileLogger owns one run directory and the files written into it
type FileLogger struct {
	baseDir      string
	logDir       string
	featuresDir  string
	allLogsFile  string
	runID        string
	mu           sync.Mutex
	asyncWriters map[string]*AsyncFile
}

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}
	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
	}
	af.wg.Add(1)
	go af.processQueue()
	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()
	if af.stopped {
		return fmt.Errorf("async file is closed")
	}
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	af.queue <- dataCopy
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()
	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()
	af.wg.Wait()
	return af.file.Close()
}

// NewFileLogger creates <baseDir>/testrun-<runID>/ and its features directory.
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	featuresDir := filepath.Join(logDir, FeaturesDirName)
	for _, dir := range []string{baseDir, logDir, featuresDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &FileLogger{
		baseDir:      baseDir,
		logDir:       logDir,
		featuresDir:  featuresDir,
		allLogsFile:  filepath.Join(logDir, AllLogsFilename),
		runID:        runID,
		asyncWriters: make(map[string]*AsyncFile),
	}, nil
}

func (l *FileLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}
	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}
	l.asyncWriters[path] = writer
	return writer, nil
}

// LogFeatureOutput writes cleaned engine output to the feature's own log file
// and appends it to the combined log. It returns the cleaned text.
func (l *FileLogger) LogFeatureOutput(featureID string, output string) (string, error) {
	cleaned := CleanOutput(output)

	writer, err := l.getAsyncWriter(l.FeatureLogPath(featureID))
	if err != nil {
		return cleaned, err
	}
	if err := writer.Write([]byte(cleaned)); err != nil {
		return cleaned, err
	}

	all, err := l.getAsyncWriter(l.allLogsFile)
	if err != nil {
		return cleaned, err
	}
	header := fmt.Sprintf("\n=== %s ===\n", featureID)
	return cleaned, all.Write([]byte(header + cleaned))
}

// Complete flushes and closes every open file.
func (l *FileLogger) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, writer := range l.asyncWriters {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.asyncWriters = make(map[string]*AsyncFile)
	return firstErr
}

// FeatureLogPath returns the log file for a feature.
func (l *FileLogger) FeatureLogPath(featureID string) string {
	return filepath.Join(l.featuresDir, safeFilename(featureID)+".log")
}

func (l *FileLogger) GetBaseDir() string     { return l.baseDir }
func (l *FileLogger) GetRunDir() string      { return l.logDir }
func (l *FileLogger) GetAllLogsFile() string { return l.allLogsFile }
func (l *FileLogger) GetRunID() string       { return l.runID }

// CleanOutput strips terminal escape sequences and normalizes line endings.
func CleanOutput(s string) string {
	s = stripansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return s
}

func safeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	s = strings.ReplaceAll(s, "...", "")
	return replacer.Replace(s)
}
