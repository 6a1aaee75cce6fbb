// Package app holds what the cmd/ binaries share: Run is all main needs from a server.
package app

// Runner is a long-running component started by a binary.
type Runner interface {
	Run() error
}
