package sandbox

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"
)

// MockCommandRunner implements CommandRunner for testing
type MockCommandRunner struct {
	mu       sync.Mutex
	commands []string
	exitCode int
	err      error
}

func (m *MockCommandRunner) RunCommand(_ context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, strings.Join(args, " "))
	return "", "", m.exitCode, m.err
}

func (m *MockCommandRunner) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// MockFileSystem implements FileSystem for testing
type MockFileSystem struct {
	mkdirAllErrors  map[string]error
	writeFileErrors map[string]error
	removeErrors    map[string]error
	writeFileData   map[string][]byte
	removed         []string
	entries         []os.DirEntry
	readDirErr      error
}

func (m *MockFileSystem) MkdirAll(path string, _ os.FileMode) error {
	if err, exists := m.mkdirAllErrors[path]; exists {
		return err
	}
	return nil
}

func (m *MockFileSystem) WriteFile(filename string, data []byte, _ os.FileMode) error {
	if m.writeFileData == nil {
		m.writeFileData = make(map[string][]byte)
	}
	for prefix, err := range m.writeFileErrors {
		if strings.HasPrefix(filename, prefix) {
			return err
		}
	}
	m.writeFileData[filename] = data
	return nil
}

func (m *MockFileSystem) Remove(path string) error {
	m.removed = append(m.removed, path)
	if err, exists := m.removeErrors[path]; exists {
		return err
	}
	if _, exists := m.writeFileData[path]; !exists {
		return os.ErrNotExist
	}
	delete(m.writeFileData, path)
	return nil
}

func (m *MockFileSystem) ReadDir(_ string) ([]os.DirEntry, error) {
	return m.entries, m.readDirErr
}

// mockDirEntry implements os.DirEntry for Sweep tests
type mockDirEntry struct {
	name  string
	isDir bool
}

func (e mockDirEntry) Name() string               { return e.name }
func (e mockDirEntry) IsDir() bool                { return e.isDir }
func (e mockDirEntry) Type() os.FileMode          { return 0 }
func (e mockDirEntry) Info() (os.FileInfo, error) { return nil, os.ErrNotExist }

func testConfig(dir string) *Config {
	return &Config{
		Runtime:       "docker",
		Image:         "python:3.9-slim-buster",
		Interpreter:   []string{"python", "-u"},
		FileExtension: ".py",
		MountPath:     "/app/code.py",
		MemoryMB:      128,
		CPUs:          0.5,
		Timeout:       30 * time.Second,
		Workdir:       dir,
	}
}
