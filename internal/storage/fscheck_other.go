//go:build !darwin && !linux

package storage

import "errors"

func detectFilesystemType(string) (string, error) {
	return "", errors.New("filesystem detection is not supported on this platform")
}
