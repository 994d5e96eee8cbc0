package dashboard

import (
	"encoding/json"
	"log"
	"sync"

	enginesync "github.com/gridsync/gridsync/internal/sync"
)

// Handler bridges sync engine events into dashboard broadcasts. Its
// OnConflicts method is registered as the coordinator's conflict handler
// and OnCommit as the daemon's commit observer.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
	}
}

// OnCommit handles a finished commit attempt
func (h *Handler) OnCommit(key string, result *enginesync.CommitResult, err error) {
	data := CommitData{Collection: key}
	if result != nil {
		data.Records = result.Records
		data.Conflicts = result.Conflicts
		data.Attempts = result.Attempts
		data.PaddedRows = result.PaddedRows
		data.DurationMS = result.Duration.Milliseconds()
	}
	if err != nil {
		data.Error = err.Error()
	}

	h.mu.Lock()
	if err != nil {
		h.stats.FailedCommits++
	} else {
		h.stats.Commits++
		h.stats.Records += data.Records
	}
	stats := h.stats
	h.mu.Unlock()

	h.broadcast(MessageTypeCommit, data)
	h.broadcast(MessageTypeStats, stats)
}

// OnConflicts handles conflicts surfaced by one merge
func (h *Handler) OnConflicts(key string, conflicts []enginesync.Conflict) {
	h.mu.Lock()
	h.stats.Conflicts += len(conflicts)
	h.mu.Unlock()

	for _, c := range conflicts {
		h.logger.Printf("Conflict in %s: record %s local v%d superseded by remote v%d",
			key, c.Local.ID, c.Local.Version, c.Remote.Version)

		h.broadcast(MessageTypeConflict, ConflictData{
			Collection:    key,
			RecordID:      c.Local.ID,
			LocalVersion:  c.Local.Version,
			RemoteVersion: c.Remote.Version,
		})
	}
}

// Stats returns the running totals.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) broadcast(typ MessageType, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Data: payload})
}
