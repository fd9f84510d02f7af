package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/modelpick/modelpick/internal/fsops"
)

const (
	sessionIdentifierLength    = 8
	sessionDirectoryNameFormat = "session_%s"
	logFileName                = "log.txt"
	directoryPermissions       = 0o755
	logFilePermissions         = 0o644
)

var ErrSessionNotFound = errors.New("unknown session")

// Store tracks wizard sessions and appends opaque audit lines to one log
// file per session. Session identity is explicit: every append names the
// session it belongs to.
type Store struct {
	filesystem    fsops.FS
	rootDirectory string

	mutex       sync.Mutex
	directories map[string]string
}

func NewStore(filesystem fsops.FS, rootDirectory string) *Store {
	return &Store{
		filesystem:    filesystem,
		rootDirectory: rootDirectory,
		directories:   map[string]string{},
	}
}

// Create allocates a new session with a short unique identifier and its own
// directory under the store root.
func (s *Store) Create() (string, error) {
	sessionID := uuid.NewString()[:sessionIdentifierLength]
	sessionDirectory := s.filesystem.Join(s.rootDirectory, fmt.Sprintf(sessionDirectoryNameFormat, sessionID))
	if err := s.filesystem.MkdirAll(sessionDirectory, directoryPermissions); err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}

	s.mutex.Lock()
	s.directories[sessionID] = sessionDirectory
	s.mutex.Unlock()
	return sessionID, nil
}

// Append writes one line to the session's log file.
func (s *Store) Append(sessionID, line string) error {
	s.mutex.Lock()
	sessionDirectory, known := s.directories[sessionID]
	s.mutex.Unlock()
	if !known {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}

	logPath := s.filesystem.Join(sessionDirectory, logFileName)
	if err := s.filesystem.Append(logPath, []byte(line+"\n"), logFilePermissions); err != nil {
		return fmt.Errorf("append session log: %w", err)
	}
	return nil
}

// LogPath returns the session's log file location, mainly for diagnostics.
func (s *Store) LogPath(sessionID string) (string, error) {
	s.mutex.Lock()
	sessionDirectory, known := s.directories[sessionID]
	s.mutex.Unlock()
	if !known {
		return "", fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	return s.filesystem.Join(sessionDirectory, logFileName), nil
}
