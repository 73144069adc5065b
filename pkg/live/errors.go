package live

import "errors"

var (
	// ErrNotLive is returned by operations that need a connected browser
	// when called on a detached page.
	ErrNotLive = errors.New("live: page is not live")

	// ErrInvalidHandlerName is returned when a handler name is not a valid
	// JavaScript identifier or starts with an underscore.
	ErrInvalidHandlerName = errors.New("live: invalid handler name")

	// ErrDuplicateHandler is returned when a name is registered twice in
	// the same scope.
	ErrDuplicateHandler = errors.New("live: handler already registered")

	// ErrInvalidRoute is returned for a route URL that is empty, relative
	// or under the reserved prefix.
	ErrInvalidRoute = errors.New("live: invalid route")

	// ErrDuplicateRoute is returned when a URL is registered twice.
	ErrDuplicateRoute = errors.New("live: route already registered")
)
