package validate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Issue struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type Result struct {
	OK       bool     `json:"ok"`
	Errors   []Issue  `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Files    []string `json:"files,omitempty"`
}

// Scan walks sourcePath, checks every Python file it finds and collects
// all issues in file-then-line order. It never mutates the tree.
func Scan(sourcePath string) (Result, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return Result{}, fmt.Errorf("stat submission path: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("submission path is not a directory: %s", sourcePath)
	}

	var files []string
	err = filepath.WalkDir(sourcePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		rel, err := filepath.Rel(sourcePath, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("walk submission path: %w", err)
	}
	sort.Strings(files)

	result := Result{Files: files}
	if len(files) == 0 {
		result.Errors = append(result.Errors, Issue{Message: "no source files found"})
		return result, nil
	}

	if _, err := os.Stat(filepath.Join(sourcePath, "requirements.txt")); err != nil {
		result.Warnings = append(result.Warnings, "no requirements.txt found - make sure all dependencies are documented")
	}

	for _, rel := range files {
		src, err := os.ReadFile(filepath.Join(sourcePath, filepath.FromSlash(rel)))
		if err != nil {
			return Result{}, fmt.Errorf("read %s: %w", rel, err)
		}
		for _, issue := range checkSource(src) {
			issue.File = rel
			result.Errors = append(result.Errors, issue)
		}
	}

	result.OK = len(result.Errors) == 0
	return result, nil
}
