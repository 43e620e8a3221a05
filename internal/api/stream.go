package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Job event types.
const (
	EventStarted   = "started"
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
)

const writeTimeout = 10 * time.Second

// JobEvent describes websocket payloads emitted while analysis jobs run.
type JobEvent struct {
	Type        string    `json:"type"`
	JobID       string    `json:"job_id"`
	DocumentID  string    `json:"document_id,omitempty"`
	Stage       string    `json:"stage,omitempty"`
	Clauses     int       `json:"clauses,omitempty"`
	OverallRisk string    `json:"overall_risk,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// eventWriter is the part of a websocket connection the notifier needs.
type eventWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
	Close() error
}

type wsClient struct {
	conn eventWriter
	mu   sync.Mutex
}

// JobNotifier tracks websocket clients and fans job events out to them. The latest
// event of every job is kept so late subscribers see current state.
type JobNotifier struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	last    map[string]JobEvent
}

// NewJobNotifier constructs a notifier instance.
func NewJobNotifier() *JobNotifier {
	return &JobNotifier{
		clients: make(map[*wsClient]struct{}),
		last:    make(map[string]JobEvent),
	}
}

// Register attaches a websocket connection and replays the last event of each job.
func (n *JobNotifier) Register(conn *websocket.Conn) *wsClient {
	return n.register(conn)
}

func (n *JobNotifier) register(conn eventWriter) *wsClient {
	client := &wsClient{conn: conn}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	snapshot := make([]JobEvent, 0, len(n.last))
	for _, ev := range n.last {
		snapshot = append(snapshot, ev)
	}
	n.mu.Unlock()

	for _, ev := range snapshot {
		_ = client.writeJSON(ev)
	}
	return client
}

// Unregister removes the client and closes its socket.
func (n *JobNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast stamps event and sends it to every registered client. Clients whose
// write fails are dropped.
func (n *JobNotifier) Broadcast(event JobEvent) {
	event.Timestamp = time.Now().UTC()

	n.mu.Lock()
	defer n.mu.Unlock()
	switch event.Type {
	case EventCompleted, EventFailed, EventCancelled:
		delete(n.last, event.JobID)
	default:
		n.last[event.JobID] = event
	}
	for client := range n.clients {
		if err := client.writeJSON(event); err != nil {
			delete(n.clients, client)
			_ = client.conn.Close()
		}
	}
}

// LastEvent returns the latest event of a running job.
func (n *JobNotifier) LastEvent(jobID string) (JobEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ev, ok := n.last[jobID]
	return ev, ok
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(payload)
}
