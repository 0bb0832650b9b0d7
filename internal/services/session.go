// Package services – SessionStore
//
// This file implements the in-memory store of resumable search sessions.
// A session is the per-(user, keyword) cursor into the corpus: how far the
// scan has advanced and whether it has reached the end. Sessions are keyed by
// the lower-cased keyword, so differently-cased queries share one cursor.
package services

import "sync"

// searchSession is one resumable cursor. lastScanned is the last corpus
// position examined (-1 before the first scan) and only ever grows. pending
// holds the single lookahead match that terminated the previous page; it is
// delivered at the head of the next page instead of being re-scanned.
//
// gen pins the corpus generation the cursor was computed against and never
// changes after construction; a scan against a different generation must fail
// rather than reinterpret positions.
type searchSession struct {
	mu          sync.Mutex
	lastScanned int
	finished    bool
	pending     string
	hasPending  bool
	gen         uint64
}

// SessionStore owns all live search sessions. The flat map is keyed by
// (userID, keyword); per-user isolation falls out of the key shape, and a
// corpus reload clears everything in one sweep.
//
// The store mutex only guards the map. Each session carries its own mutex,
// so two users can scan concurrently while two requests for the same session
// serialize on the session lock.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*searchSession
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*searchSession)}
}

// sessionKey joins user and keyword with a separator that cannot occur in a
// trimmed keyword, so distinct pairs never collide.
func sessionKey(userID, keyword string) string {
	return userID + "\x00" + keyword
}

// getOrCreate returns the live session for (userID, keyword), creating a
// fresh cursor bound to gen when none exists. An existing session bound to
// the same generation is returned as-is: starting a search for a keyword
// that already has a session resumes it, it does not restart it. A session
// carrying a different generation is replaced with a fresh cursor; it can be
// left behind when a search races a corpus reload, and its positions are
// meaningless against the current line sequence.
func (s *SessionStore) getOrCreate(userID, keyword string, gen uint64) *searchSession {
	k := sessionKey(userID, keyword)
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[k]; ok && sess.gen == gen {
		return sess
	}
	sess := &searchSession{lastScanned: -1, gen: gen}
	s.sessions[k] = sess
	return sess
}

// get returns the live session for (userID, keyword), if any.
func (s *SessionStore) get(userID, keyword string) (*searchSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKey(userID, keyword)]
	return sess, ok
}

// ClearAll atomically drops every session for every user. Called on corpus
// reload; cursors computed against the old line sequence are meaningless
// against the new one.
func (s *SessionStore) ClearAll() {
	s.mu.Lock()
	s.sessions = make(map[string]*searchSession)
	s.mu.Unlock()
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
