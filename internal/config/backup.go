package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the number of config backups kept per file.
	MaxBackups = 3

	// BackupSuffix separates the file name from the backup timestamp.
	BackupSuffix = ".bak"
)

// BackupFile copies path to "<path>.bak.<timestamp>" and prunes old backups.
// It returns "" when path does not exist.
func BackupFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s%s.%s", path, BackupSuffix, time.Now().Format("20060102-150405.000"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	// Best effort: the backup itself succeeded.
	_ = pruneBackups(path)

	return backupPath, nil
}

// ListBackups returns the backups of path, newest first.
func ListBackups(path string) ([]string, error) {
	matches, err := filepath.Glob(path + BackupSuffix + ".*")
	if err != nil {
		return nil, err
	}
	// Timestamps sort lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

func pruneBackups(path string) error {
	backups, err := ListBackups(path)
	if err != nil {
		return err
	}
	for i := MaxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i]); err != nil {
			return err
		}
	}
	return nil
}

// RestoreBackup copies backupPath over the config file it was taken from.
func RestoreBackup(backupPath string) error {
	i := strings.LastIndex(backupPath, BackupSuffix+".")
	if i <= 0 {
		return fmt.Errorf("%s is not a config backup", backupPath)
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	if err := os.WriteFile(backupPath[:i], data, 0o644); err != nil {
		return fmt.Errorf("failed to restore config: %w", err)
	}
	return nil
}
