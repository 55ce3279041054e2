package notify

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/commute-rides/internal/models"
)

// WSSession wraps one connected employee client. Writes are serialized;
// gorilla conns do not allow concurrent writers.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(n)
}

// WSRegistry pushes notifications to employees with a live websocket.
// An employee without a session is simply not reachable on this backend,
// which is not an error: Kafka remains the durable path.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(empID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[empID]; ok {
		_ = old.conn.Close()
	}
	r.sessions[empID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(empID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[empID]; ok {
		_ = s.conn.Close()
		delete(r.sessions, empID)
	}
}

func (r *WSRegistry) Notify(ctx context.Context, n models.Notification) error {
	r.mu.RLock()
	s, ok := r.sessions[n.RecipientID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := s.Send(n); err != nil {
		r.Remove(n.RecipientID)
		return err
	}
	return nil
}
