package protocol

// Size limits for inbound client messages.
const (
	// MaxMessageSize bounds a single inbound websocket message. A serialized
	// document travels with every event, so this is generous.
	MaxMessageSize = 16 << 20

	// ChunkSize is the number of UTF-16 code units (text) or bytes (binary) the
	// client runtime places in each file chunk.
	ChunkSize = 16000
)
