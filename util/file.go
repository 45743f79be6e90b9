package util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/tunnelcore/tunnelcore/shared/status"
)

// MaxConfigFileSize limits how much of a config file is read into memory
const MaxConfigFileSize = 10 * 1024 * 1024 // 10MB

// WriteBytesWithRestrictedPermission writes bs to file through a 0600 temp file in the same
// directory and renames it over the target. Parent directories are created when missing.
// Failures are status.IO errors.
func WriteBytesWithRestrictedPermission(ctx context.Context, file string, bs []byte) error {
	configDir, configFileName, err := prepareConfigFileDir(file)
	if err != nil {
		return status.Wrap(status.IO, err, "prepare config file dir")
	}

	if err := writeBytes(ctx, file, configDir, configFileName, bs); err != nil {
		return status.Wrap(status.IO, err, "write %s", file)
	}
	return nil
}

// writeBytes writes bytes to a file using atomic write (temp file + rename).
// The temp file is removed on every error path.
func writeBytes(ctx context.Context, file string, configDir string, configFileName string, bs []byte) error {
	if ctx.Err() != nil {
		return fmt.Errorf("write bytes start: %w", ctx.Err())
	}

	tempFile, err := os.CreateTemp(configDir, ".*"+configFileName)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}

	tempFileName := tempFile.Name()

	if err := os.Chmod(tempFileName, 0600); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempFileName)
		return fmt.Errorf("set temp file permissions: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := tempFile.SetDeadline(deadline); err != nil && !errors.Is(err, os.ErrNoDeadline) {
			log.Warnf("failed to set deadline: %v", err)
		}
	}

	_, err = tempFile.Write(bs)
	if err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempFileName)
		return fmt.Errorf("write: %w", err)
	}

	if err = tempFile.Close(); err != nil {
		_ = os.Remove(tempFileName)
		return fmt.Errorf("close %s: %w", tempFileName, err)
	}

	defer func() {
		if _, statErr := os.Stat(tempFileName); statErr == nil {
			_ = os.Remove(tempFileName)
		}
	}()

	if ctx.Err() != nil {
		return fmt.Errorf("after temp file: %w", ctx.Err())
	}

	if err = os.Rename(tempFileName, file); err != nil {
		return fmt.Errorf("move %s to %s: %w", tempFileName, file, err)
	}

	return nil
}

// ReadFileLimited reads the whole file, refusing files larger than MaxConfigFileSize.
// Failures are status.IO errors.
func ReadFileLimited(file string) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, status.Wrap(status.IO, err, "open %s", file)
	}
	defer f.Close()

	bs, err := io.ReadAll(io.LimitReader(f, MaxConfigFileSize+1))
	if err != nil {
		return nil, status.Wrap(status.IO, err, "read %s", file)
	}

	if len(bs) > MaxConfigFileSize {
		return nil, status.Errorf(status.IO, "file %s too large: maximum size is %d bytes", file, MaxConfigFileSize)
	}

	return bs, nil
}

// FileExists returns true if specified file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// prepareConfigFileDir creates the parent directory with 0750 when it doesn't exist.
func prepareConfigFileDir(file string) (string, string, error) {
	configDir, configFileName := filepath.Split(file)
	if configDir == "" {
		return filepath.Dir(file), configFileName, nil
	}

	err := os.MkdirAll(configDir, 0750)
	if err != nil {
		return "", "", err
	}

	return configDir, configFileName, err
}
