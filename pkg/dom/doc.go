// Package dom is the server-side document model.
//
// A Document is rebuilt from the HTML the client runtime serializes with
// every event. It supports the queries and mutations handlers need and can
// compute, for any element, the selector the client runtime uses to find
// the same element in the live page.
//
// The package has no knowledge of connections or instructions; pkg/live
// wraps it to forward mutations to the browser.
package dom
