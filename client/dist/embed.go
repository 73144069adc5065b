package clientdist

import _ "embed"

// DomwireJS is the client runtime.
//
// It is served by the framework at "/_domwire/client.js".
//
//go:embed domwire.js
var DomwireJS []byte
