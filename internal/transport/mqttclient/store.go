package mqttclient

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// sessionStore serializes all session-file I/O behind one mutex and
// guards a shutdown flag, per the spec's persistence rule: "All file
// I/O is serialized by a dedicated mutex and guards a shutdown flag."
type sessionStore struct {
	mu       sync.Mutex
	dir      string
	expiry   time.Duration
	shutdown bool
}

func newSessionStore(dir string, expiry time.Duration) *sessionStore {
	return &sessionStore{dir: dir, expiry: expiry}
}

func (s *sessionStore) path(clientID string) string {
	return filepath.Join(s.dir, clientID+".mcps")
}

// load reads and validates the session file for clientID. A missing
// file is not an error (ok=false); a file with a bad magic or
// unsupported version is deleted and also reported as ok=false.
func (s *sessionStore) load(clientID string) (sessionFile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return sessionFile{}, false, nil
	}

	raw, err := os.ReadFile(s.path(clientID))
	if err != nil {
		if os.IsNotExist(err) {
			return sessionFile{}, false, nil
		}
		return sessionFile{}, false, err
	}

	sf, err := decodeSession(raw)
	if err != nil {
		os.Remove(s.path(clientID))
		return sessionFile{}, false, nil
	}
	return sf, true, nil
}

// save writes sf's session file, creating the directory if needed.
func (s *sessionStore) save(sf sessionFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path(sf.ClientID), encodeSession(sf), 0o600)
}

func (s *sessionStore) delete(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	os.Remove(s.path(clientID))
}

// sweep removes every session file whose last-access time is older
// than its own expiry interval. Run periodically by a dedicated
// cleanup goroutine.
func (s *sessionStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".mcps") {
			continue
		}
		full := filepath.Join(s.dir, e.Name())
		raw, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		sf, err := decodeSession(raw)
		if err != nil {
			os.Remove(full)
			continue
		}
		expiry := time.Duration(sf.ExpirySecs) * time.Second
		if expiry <= 0 {
			expiry = s.expiry
		}
		lastAccess := time.UnixMilli(int64(sf.LastAccessMs))
		if now.Sub(lastAccess) > expiry {
			os.Remove(full)
		}
	}
}

func (s *sessionStore) close() {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
}
