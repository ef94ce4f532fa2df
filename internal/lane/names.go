// Package lane implements the local peer-lane transport: unix-socket yards
// named after the lane, the rendezvous with the companion peer, the
// call-scoped stack binding and the companion's service loop.
package lane

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// RemoteYard is the yard name the companion peer listens on.
const RemoteYard = "manor"

// stackPrefix prefixes every caller stack name.
const stackPrefix = "caller"

// Name returns the lane name for an identity and application kind.
func Name(role, kind string) string {
	return role + "_" + kind
}

// YardPath is the socket path of a yard on a lane.
func YardPath(sockDir, lane, yard string) string {
	return filepath.Join(sockDir, lane+"."+yard+".uxd")
}

// PeerPath is the socket path the companion peer binds.
func PeerPath(sockDir, lane string) string {
	return YardPath(sockDir, lane, RemoteYard)
}

// LockPath is the PID lock held by the companion peer of a lane.
func LockPath(sockDir, lane string) string {
	return filepath.Join(sockDir, lane+"."+RemoteYard+".pid")
}

// StackName returns a fresh caller stack name: "caller" plus 18 hex chars.
func StackName() string {
	return stackPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:18]
}
