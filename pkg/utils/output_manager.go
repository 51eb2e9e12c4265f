package utils

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DownloadRoute is the API prefix under which run files are served.
const DownloadRoute = "/api/v1/download"

// fileTypes maps output extensions to the type recorded in the file registry.
var fileTypes = map[string]string{
	".csv":  "csv",
	".json": "json",
	".png":  "png",
	".svg":  "svg",
	".md":   "markdown",
}

// OutputManager lays out run outputs as <base>/<run-id>/<file>.
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates an output manager rooted at baseOutputDir.
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{BaseOutputDir: baseOutputDir}
}

// JobOutputDir returns the run directory without creating it.
func (om *OutputManager) JobOutputDir(jobID string) string {
	return filepath.Join(om.BaseOutputDir, filepath.Base(jobID))
}

// CreateJobOutputDir creates the run directory if needed and returns it.
func (om *OutputManager) CreateJobOutputDir(jobID string) (string, error) {
	dir := om.JobOutputDir(jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create run directory %s: %w", dir, err)
	}
	return dir, nil
}

// GetOutputFilePath returns where a run file is written. Any directory part
// of fileName is dropped.
func (om *OutputManager) GetOutputFilePath(jobID, fileName string) (string, error) {
	dir, err := om.CreateJobOutputDir(jobID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(fileName)), nil
}

// ResolveFile returns the path of an existing run file. Names that are not a
// plain file name, or that point outside the run directory, are rejected.
func (om *OutputManager) ResolveFile(jobID, fileName string) (string, error) {
	if !plainName(jobID) || !plainName(fileName) {
		return "", fmt.Errorf("invalid file reference %q/%q", jobID, fileName)
	}
	p := filepath.Join(om.JobOutputDir(jobID), fileName)
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", fileName)
	}
	return p, nil
}

func plainName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}

// GetDownloadURL returns the API path serving a run file.
func (om *OutputManager) GetDownloadURL(jobID, fileName string) string {
	return path.Join(DownloadRoute, url.PathEscape(jobID), url.PathEscape(filepath.Base(fileName)))
}

// GetFileType classifies a file by extension, "unknown" when unrecognised.
func (om *OutputManager) GetFileType(fileName string) string {
	if t, ok := fileTypes[strings.ToLower(filepath.Ext(fileName))]; ok {
		return t
	}
	return "unknown"
}

// GetFileSize returns the size of a file in bytes
func (om *OutputManager) GetFileSize(filePath string) (int64, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// EnsureOutputDirExists creates the base directory.
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0755)
}
