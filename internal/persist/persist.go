// Package persist is the local persistence port: string-valued key-value
// storage that survives restarts. It mirrors the controller's state; it is
// never the source of truth while a session is live.
package persist

// Keys used by the session controller.
const (
	KeyConversationID = "current-conversation-id"
	KeyHistory        = "chat-history"
	KeyMetrics        = "chat-metrics"
	KeyArchives       = "conversations"
)

// Store is the key-value surface the controller writes through. A missing
// key is reported via the bool, not an error.
type Store interface {
	Load(key string) (string, bool, error)
	Save(key, value string) error
	Delete(key string) error
}
