// Package server provides the HTTP and websocket runtime for domwire apps.
//
// The server renders registered pages with the client runtime injected,
// accepts one websocket per browser window and runs handlers for the events
// the runtime sends.
//
// # Architecture
//
//   - Server: HTTP routing (chi), websocket upgrade, graceful shutdown
//   - Connection: one websocket with its event queue and reply correlator
//   - ConnectionManager: the registry of open connections
//   - MetricsCollector: atomic counters exported by pkg/middleware
//
// # Connection Lifecycle
//
// Each connection runs three goroutines in one errgroup:
//   - read loop: decodes frames, queues events, hands replies to waiters
//   - event loop: runs queued events one at a time in arrival order
//   - heartbeat: sends pings so idle connections stay open
//
// When any of them stops the connection closes and the others follow.
//
// # Replies
//
// Instructions that expect a reply (_getFiles, _saveFile) carry a message
// number unique within the connection. Call and Stream issue the number,
// write the instruction and block the handler until the replies arrive.
// Meanwhile the read loop keeps reading, so events that arrive are queued
// behind the running one instead of interleaving with it. Replies for
// numbers not yet issued are buffered; replies for finished numbers are
// discarded.
//
// # Example Usage
//
//	app := live.NewApp()
//	route, _ := app.AddPage("/", `<html><head></head><body>
//	    <button id="go" onclick="clicked(this)">Go</button>
//	</body></html>`)
//	route.Handle("clicked", func(p *live.Page, args live.Args) error {
//	    return args.Element(0).SetInnerHTML("Done")
//	})
//
//	srv := server.New(app, server.DefaultServerConfig().WithAddress(":8080"))
//	srv.Run()
//
// # Thread Safety
//
//   - Connection.mu serializes websocket writes
//   - the event queue serializes handlers per connection
//   - user variables are shared between connections and locked per user
package server
