package audit

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Entry records one auth-relevant event: registration, login, key
// lifecycle, connection lifecycle, OAuth completion.
type Entry struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	TraceID      string
}

type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// Log appends asynchronously; the audit trail must never block or fail
// the request it describes.
func (l *Logger) Log(e Entry) {
	id := "audit_" + uuid.NewString()
	createdAt := time.Now().Unix()

	go func() {
		_, err := l.db.Exec(`
			INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, ip_address, trace_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, e.UserID, e.Action, e.ResourceType, e.ResourceID, e.IPAddress, e.TraceID, createdAt)
		if err != nil {
			log.Warn().Err(err).Str("action", e.Action).Msg("audit write failed")
		}
	}()
}
