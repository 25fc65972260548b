package logging

import "path/filepath"

const (
	// DirName is the log directory inside the data directory.
	DirName = "logs"

	// FileName is the active log file.
	FileName = "amanrag.log"
)

// LogPath returns the log file location for a data directory.
func LogPath(dataDir string) string {
	return filepath.Join(dataDir, DirName, FileName)
}
