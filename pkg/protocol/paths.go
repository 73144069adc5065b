package protocol

// HTTP paths shared by the server and the client runtime.
const (
	// PathPrefix is reserved; pages cannot be registered under it.
	PathPrefix = "/_domwire/"

	// SocketPath is the websocket endpoint the client runtime dials.
	SocketPath = PathPrefix + "ws"

	// ScriptPath serves the client runtime.
	ScriptPath = PathPrefix + "client.js"

	// UserCookie carries the user id that selects a session partition.
	UserCookie = "domwire_uid"
)
