// Package dispatch runs external processes for the agent.
//
// Two shapes are supported:
//   - Run executes a command to completion, capturing stdout and stderr,
//     with timeout enforcement SIGTERM → grace → SIGKILL.
//   - StartDetached starts a long-lived process in its own session (the lane
//     companion) and hands back a handle whose only lifecycle event is Kill.
//
// Timeout handling:
//   - When the timeout expires (or ctx is cancelled), SIGTERM is sent
//   - After the grace period, SIGKILL is sent if the process is still running
//   - The outcome reports TimedOut and the captured output so far
//
// Captured output is capped at 64KB per stream.
package dispatch
