// Package protocol implements the JSON wire protocol between the domwire
// client runtime and the server.
//
// Every message is a JSON text frame on a single websocket per page.
//
// # Server to client
//
// Instructions mutate the live DOM or ask the client for data:
//
//	{"func": "_setAttr", "kwargs": {"selector": "button#submit", "name": "disabled", "value": "true"}}
//
// Only instructions that expect a reply (_getFiles, _saveFile) carry
// kwargs["msg-num"]. The client ignores instruction names it does not know;
// the server refuses to build them.
//
// # Client to server
//
// Messages with "type": "page" are events:
//
//	{"type": "page", "func": "save", "args": [{"type": "element", "selector": "div#box"}],
//	 "selector-to-element": true, "url": "/", "html": "<html>...</html>", "uid": null}
//
// Anything else is a reply correlated by its msg-num:
//
//	{"type": "files", "data": [{"name": "a.txt", "file-id": "0", ...}], "msg-num": 3}
//	{"type": "save files", "data": "chunk", "msg-num": 4, "end": false}
//
// Unknown fields are ignored. Messages missing required fields decode to a
// *ProtocolError and are dropped by the connection.
package protocol
