package pkg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SQLLoader loads named SQL queries from a directory of .sql files.
type SQLLoader interface {
	// LoadAll reads every .sql file in the loader's directory into memory.
	LoadAll() error
	// GetQuery returns the SQL text for the given query name.
	GetQuery(name string) (string, error)
}

// fileSQLLoader implements SQLLoader by reading one .sql file per query
// name from a directory, optionally looking in a driver-specific
// subdirectory first (e.g. "<dir>/<driver>/<name>.sql") before falling
// back to "<dir>/<name>.sql".
type fileSQLLoader struct {
	driver string
	dir    string
	mutex  sync.RWMutex
	queries map[string]string
}

// NewSQLLoader creates a SQLLoader that reads SQL files from dir for the
// given driver.
func NewSQLLoader(driver string, dir string) (SQLLoader, error) {
	if dir == "" {
		return nil, fmt.Errorf("sql loader: directory must not be empty")
	}
	return &fileSQLLoader{
		driver:  driver,
		dir:     dir,
		queries: make(map[string]string),
	}, nil
}

// LoadAll scans the driver-specific subdirectory (if present) and the
// base directory for .sql files and loads their contents into memory.
func (l *fileSQLLoader) LoadAll() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	dirs := []string{}
	if l.driver != "" {
		dirs = append(dirs, filepath.Join(l.dir, l.driver))
	}
	dirs = append(dirs, l.dir)

	loaded := false
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("sql loader: failed to read directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
				continue
			}
			name := strings.TrimSuffix(entry.Name(), ".sql")
			if _, exists := l.queries[name]; exists {
				continue
			}
			content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				return fmt.Errorf("sql loader: failed to read file %s: %w", entry.Name(), err)
			}
			l.queries[name] = string(content)
		}
		loaded = true
	}

	if !loaded {
		return fmt.Errorf("sql loader: no sql directory found under %s", l.dir)
	}

	return nil
}

// GetQuery returns the SQL text previously loaded under the given name.
func (l *fileSQLLoader) GetQuery(name string) (string, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	query, ok := l.queries[name]
	if !ok {
		return "", fmt.Errorf("sql loader: query %q not found", name)
	}
	return strings.TrimSpace(query), nil
}
