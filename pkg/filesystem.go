package pkg

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	// ErrFileNotFound is returned when a file is not found in the virtual filesystem
	ErrFileNotFound = errors.New("file not found")
	// ErrInvalidPath is returned when a path is invalid
	ErrInvalidPath = errors.New("invalid path")
	// ErrIsDirectory is returned when trying to read a directory as a file
	ErrIsDirectory = errors.New("is a directory")
)

// VirtualFS interface is defined in managers.go
// This file provides implementations of VirtualFS

// osFileSystem implements VirtualFS using the OS filesystem
type osFileSystem struct {
	root string
	mu   sync.RWMutex
}

// NewOSFileSystem creates a new OS-based virtual filesystem
func NewOSFileSystem(root string) VirtualFS {
	return &osFileSystem{
		root: filepath.Clean(root),
	}
}

// Open opens a file from the OS filesystem
func (fs *osFileSystem) Open(name string) (http.File, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	// Clean and validate the path
	name = filepath.Clean("/" + name)
	fullPath := filepath.Join(fs.root, name)

	// Ensure the path is within the root directory (prevent directory traversal)
	if !strings.HasPrefix(fullPath, fs.root) {
		return nil, ErrInvalidPath
	}

	// Open the file
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	return file, nil
}

// Exists checks if a file exists in the OS filesystem
func (fs *osFileSystem) Exists(name string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	name = filepath.Clean("/" + name)
	fullPath := filepath.Join(fs.root, name)

	if !strings.HasPrefix(fullPath, fs.root) {
		return false
	}

	_, err := os.Stat(fullPath)
	return err == nil
}

// MemoryFileSystem implements VirtualFS using in-memory storage
type MemoryFileSystem struct {
	files map[string]*memoryFile
	mu    sync.RWMutex
}

// memoryFile represents a file in memory
type memoryFile struct {
	name    string
	data    []byte
	modTime time.Time
	isDir   bool
	files   map[string]*memoryFile // For directories
}

// NewMemoryFileSystem creates a new in-memory virtual filesystem
func NewMemoryFileSystem() VirtualFS {
	return &MemoryFileSystem{
		files: make(map[string]*memoryFile),
	}
}

// Open opens a file from the memory filesystem
func (fs *MemoryFileSystem) Open(name string) (http.File, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	name = path.Clean("/" + name)

	file, exists := fs.files[name]
	if !exists {
		return nil, ErrFileNotFound
	}

	return &memoryHTTPFile{
		file:   file,
		reader: strings.NewReader(string(file.data)),
	}, nil
}

// Exists checks if a file exists in the memory filesystem
func (fs *MemoryFileSystem) Exists(name string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	name = path.Clean("/" + name)
	_, exists := fs.files[name]
	return exists
}

// AddFile adds a file to the memory filesystem
func (fs *MemoryFileSystem) AddFile(name string, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	name = path.Clean("/" + name)

	fs.files[name] = &memoryFile{
		name:    name,
		data:    data,
		modTime: time.Now(),
		isDir:   false,
	}

	return nil
}

// AddDir adds a directory to the memory filesystem
func (fs *MemoryFileSystem) AddDir(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	name = path.Clean("/" + name)

	fs.files[name] = &memoryFile{
		name:    name,
		modTime: time.Now(),
		isDir:   true,
		files:   make(map[string]*memoryFile),
	}

	return nil
}

// memoryHTTPFile implements http.File for in-memory files
type memoryHTTPFile struct {
	file   *memoryFile
	reader *strings.Reader
	offset int64
}

// Read reads from the memory file
func (f *memoryHTTPFile) Read(p []byte) (int, error) {
	if f.file.isDir {
		return 0, ErrIsDirectory
	}
	return f.reader.Read(p)
}

// Seek seeks within the memory file
func (f *memoryHTTPFile) Seek(offset int64, whence int) (int64, error) {
	if f.file.isDir {
		return 0, ErrIsDirectory
	}
	return f.reader.Seek(offset, whence)
}

// Close closes the memory file (no-op for memory files)
func (f *memoryHTTPFile) Close() error {
	return nil
}

// Readdir reads directory entries
func (f *memoryHTTPFile) Readdir(count int) ([]fs.FileInfo, error) {
	if !f.file.isDir {
		return nil, errors.New("not a directory")
	}

	// Convert memory files to FileInfo
	infos := make([]fs.FileInfo, 0, len(f.file.files))
	for _, file := range f.file.files {
		infos = append(infos, &memoryFileInfo{file: file})
	}

	if count <= 0 {
		return infos, nil
	}

	if count > len(infos) {
		count = len(infos)
	}

	return infos[:count], nil
}

// Stat returns file information
func (f *memoryHTTPFile) Stat() (fs.FileInfo, error) {
	return &memoryFileInfo{file: f.file}, nil
}

// memoryFileInfo implements fs.FileInfo for memory files
type memoryFileInfo struct {
	file *memoryFile
}

func (fi *memoryFileInfo) Name() string       { return filepath.Base(fi.file.name) }
func (fi *memoryFileInfo) Size() int64        { return int64(len(fi.file.data)) }
func (fi *memoryFileInfo) Mode() fs.FileMode  { return 0644 }
func (fi *memoryFileInfo) ModTime() time.Time { return fi.file.modTime }
func (fi *memoryFileInfo) IsDir() bool        { return fi.file.isDir }
func (fi *memoryFileInfo) Sys() interface{}   { return nil }

