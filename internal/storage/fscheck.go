package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem marks a path that lives on a network mount.
var ErrNetworkFilesystem = errors.New("network filesystem")

// Mount types that break SQLite locking and unix-domain sockets.
var networkFilesystems = map[string]bool{
	"9p":     true,
	"afpfs":  true,
	"afs":    true,
	"ceph":   true,
	"cifs":   true,
	"nfs":    true,
	"smb2":   true,
	"smbfs":  true,
	"webdav": true,
}

// RequireLocal fails with ErrNetworkFilesystem when path, or its nearest
// existing parent, is on a network mount. what names the resource and hint
// tells the operator which key to change; both end up in the error.
func RequireLocal(path, what, hint string) error {
	return requireLocal(path, what, hint, detectFilesystemType)
}

type fsDetector func(path string) (string, error)

func requireLocal(path, what, hint string, detect fsDetector) error {
	if path == "" {
		return fmt.Errorf("%s path is empty", what)
	}

	probe, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve %s path %q: %w", what, path, err)
	}
	fsType, err := detect(probe)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", probe, err)
	}
	if !isNetworkFilesystem(fsType) {
		return nil
	}

	msg := fmt.Sprintf("%s %q is on %q, which needs a local filesystem", what, path, fsType)
	if hint != "" {
		msg += ". " + hint
	}
	return fmt.Errorf("%w: %s", ErrNetworkFilesystem, msg)
}

// nearestExistingPath walks up from path to the first component that exists.
func nearestExistingPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for candidate := abs; ; {
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	return networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
}
