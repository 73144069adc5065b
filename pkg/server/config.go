package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/vango-dev/domwire/pkg/protocol"
	"github.com/vango-dev/domwire/pkg/upload"
)

// ConnectionConfig holds configuration for individual connections.
type ConnectionConfig struct {
	// ReadTimeout is the maximum time to wait for a frame from the client.
	// Heartbeat pongs extend it.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a frame.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between heartbeat pings.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// MaxMessageSize is the maximum size of an incoming frame. Events carry
	// the whole document, so this is larger than usual.
	// Default: 16MB.
	MaxMessageSize int64

	// MaxEventQueue is the number of events that may wait behind the one
	// being handled. Further events are dropped.
	// Default: 256.
	MaxEventQueue int

	// MaxBufferedReplies bounds replies held for message numbers that have
	// not been issued yet.
	// Default: 1024.
	MaxBufferedReplies int

	// CallTimeout bounds how long Call and Stream wait for replies.
	// 0 waits until the reply arrives or the connection closes.
	// Default: 0.
	CallTimeout time.Duration
}

// DefaultConnectionConfig returns a ConnectionConfig with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		ReadTimeout:        60 * time.Second,
		WriteTimeout:       10 * time.Second,
		HeartbeatInterval:  30 * time.Second,
		MaxMessageSize:     protocol.MaxMessageSize,
		MaxEventQueue:      256,
		MaxBufferedReplies: 1024,
	}
}

// Clone returns a copy of the ConnectionConfig.
func (c *ConnectionConfig) Clone() *ConnectionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// fill sets unset fields from the defaults.
func (c *ConnectionConfig) fill() {
	d := DefaultConnectionConfig()
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.MaxEventQueue <= 0 {
		c.MaxEventQueue = d.MaxEventQueue
	}
	if c.MaxBufferedReplies <= 0 {
		c.MaxBufferedReplies = d.MaxBufferedReplies
	}
}

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., ":8080" or "localhost:3000").
	// Default: ":8080".
	Address string

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// ConnectionConfig is the configuration for individual connections.
	// Default: DefaultConnectionConfig().
	ConnectionConfig *ConnectionConfig

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration

	// MaxConnections is the maximum number of concurrent connections.
	// 0 means no limit.
	MaxConnections int

	// ValidateConnection is called before the websocket upgrade. Returning
	// false refuses the connection with 403.
	ValidateConnection func(r *http.Request) bool

	// ValidateData is called with every inbound frame before it is decoded.
	// Returning false discards the frame.
	ValidateData func(c *Connection, data []byte) bool

	// OnHandlerError receives handler errors and recovered panics after the
	// page has been torn down. The connection stays open.
	// Default: logs at error level.
	OnHandlerError func(err *HandlerError)

	// Uploads holds files offered for download with Page.Download. When set,
	// the server mounts upload.DownloadHandler.
	Uploads upload.Store

	// UserVars are the initial variables of every new user.
	UserVars map[string]any

	// UserIdleTTL drops variables of users that have not been seen for this
	// long.
	// Default: 24 hours.
	UserIdleTTL time.Duration

	// AllowedRedirectHosts restricts Page.Navigate to relative URLs and
	// absolute http(s) URLs on these hosts. Empty allows any URL.
	AllowedRedirectHosts []string

	// SecureCookies marks the user cookie Secure.
	SecureCookies bool

	// TrustClientUID lets an event's uid field choose the user variables
	// partition instead of the user cookie. Enable it only for desktop hosts
	// where every client is the local user; in a browser deployment any
	// client could read another user's variables by sending their uid.
	TrustClientUID bool

	// TrustedProxies lists proxy IPs or CIDRs whose Forwarded and
	// X-Forwarded-For headers are believed when logging client addresses.
	TrustedProxies []string

	// DevMode disables client caching.
	DevMode bool
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":8080",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       SameOriginCheck,
		ConnectionConfig:  DefaultConnectionConfig(),
		ShutdownTimeout:   30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		UserIdleTTL:       24 * time.Hour,
	}
}

// fill sets unset fields from the defaults.
func (c *ServerConfig) fill() {
	d := DefaultServerConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = d.CheckOrigin
	}
	if c.ConnectionConfig == nil {
		c.ConnectionConfig = d.ConnectionConfig
	}
	c.ConnectionConfig.fill()
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if c.UserIdleTTL == 0 {
		c.UserIdleTTL = d.UserIdleTTL
	}
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if r.Host == "" {
		return false
	}
	return originURL.Host == r.Host
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.ConnectionConfig = c.ConnectionConfig.Clone()
	clone.TrustedProxies = append([]string(nil), c.TrustedProxies...)
	clone.AllowedRedirectHosts = append([]string(nil), c.AllowedRedirectHosts...)
	return &clone
}

// WithAddress sets the server address and returns the config for chaining.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	c.Address = addr
	return c
}

// WithConnectionConfig sets the connection configuration and returns the
// config for chaining.
func (c *ServerConfig) WithConnectionConfig(cc *ConnectionConfig) *ServerConfig {
	c.ConnectionConfig = cc
	return c
}

// WithMaxConnections sets the connection limit and returns the config for
// chaining.
func (c *ServerConfig) WithMaxConnections(max int) *ServerConfig {
	c.MaxConnections = max
	return c
}

// WithUploads sets the download store and returns the config for chaining.
func (c *ServerConfig) WithUploads(store upload.Store) *ServerConfig {
	c.Uploads = store
	return c
}

// WithDevMode enables DevMode and returns the config for chaining.
func (c *ServerConfig) WithDevMode() *ServerConfig {
	c.DevMode = true
	return c
}
