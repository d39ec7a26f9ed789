package rpc

import (
	"log/slog"
	"sync"
)

// At most one Server may be running per process.
var (
	processMu     sync.Mutex
	processServer *Server
)

func claimProcess(s *Server) bool {
	processMu.Lock()
	defer processMu.Unlock()
	if processServer != nil && processServer != s {
		return false
	}
	processServer = s
	return true
}

func releaseProcess(s *Server) {
	processMu.Lock()
	defer processMu.Unlock()
	if processServer == s {
		processServer = nil
	}
}

// Active returns the server currently running in this process, if any.
func Active() *Server {
	processMu.Lock()
	defer processMu.Unlock()
	return processServer
}

// The default instance backs the host's start/stop operators.
var (
	defaultMu     sync.Mutex
	defaultServer *Server
)

// Default returns the operator-managed server, or nil.
func Default() *Server {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultServer
}

// StartDefault starts the operator-managed server, creating it from cfg on
// first use. When it is already running the existing instance is returned.
func StartDefault(cfg ServerConfig, sched Scheduler, log *slog.Logger) (*Server, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultServer == nil {
		defaultServer = NewServer(cfg, sched, log)
	}
	if err := defaultServer.Start(); err != nil {
		defaultServer = nil
		return nil, err
	}
	return defaultServer, nil
}

// StopDefault stops and forgets the operator-managed server. It is safe to
// call when nothing is running.
func StopDefault() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultServer == nil {
		return nil
	}
	err := defaultServer.Stop()
	defaultServer = nil
	return err
}
