package compiler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/procflow/internal/ir"
)

// Load error codes (E001-E099), shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No definition files found
	ErrCodeLoadFailed  = "E004" // File could not be read or parsed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeUnsupported = "E006" // Unsupported file extension
)

// LoadError represents an error that occurred while loading definition files.
type LoadError struct {
	Code    string
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsDefinitionFile reports whether path has a supported extension.
func IsDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".cue":
		return true
	}
	return false
}

// LoadFile reads definition drafts from a single file.
// YAML files hold one definition; CUE files may hold several.
func LoadFile(path string) ([]ir.ProcessDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "file not found"}
		}
		return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: err.Error()}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		def, err := ParseYAML(data)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: err.Error()}
		}
		return []ir.ProcessDefinition{*def}, nil
	case ".cue":
		defs, err := CompileCUE(data, path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: err.Error()}
		}
		return defs, nil
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Path: path, Message: "expected .yaml, .yml or .cue"}
	}
}

// LoadDir loads every definition file under dir, in lexical path order.
func LoadDir(dir string) ([]ir.ProcessDefinition, error) {
	files, err := FindDefinitionFiles(dir)
	if err != nil {
		return nil, err
	}

	var defs []ir.ProcessDefinition
	for _, file := range files {
		loaded, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	}
	return defs, nil
}

// LoadPath loads a file or, if path is a directory, every file under it.
func LoadPath(path string) ([]ir.ProcessDefinition, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "path not found"}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: err.Error()}
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// FindDefinitionFiles walks dir and returns definition file paths, sorted.
func FindDefinitionFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: dir, Message: "definitions directory not found"}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: dir, Message: err.Error()}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: dir, Message: "not a directory"}
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsDefinitionFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Path: dir, Message: err.Error()}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Path: dir, Message: "no definition files found"}
	}
	sort.Strings(files)
	return files, nil
}
