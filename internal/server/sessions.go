package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the part of a websocket connection a session needs.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

type Session struct {
	ID      string
	Remote  string
	Started time.Time
	conn    Conn
	wmu     sync.Mutex
}

func (s *Session) WriteText(b []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

// Sessions tracks open websocket sessions so they can be counted and closed on shutdown.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessions() *Sessions { return &Sessions{sessions: make(map[string]*Session)} }

func (m *Sessions) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	metricWSSessions.Inc()
}

// Remove is a no-op for unknown ids, so a session closed by CloseAll is not counted twice.
func (m *Sessions) Remove(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		metricWSSessions.Dec()
	}
}

func (m *Sessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Sessions) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		_ = s.conn.Close()
		metricWSSessions.Dec()
	}
}
