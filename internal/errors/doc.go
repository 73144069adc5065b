// Package errors provides coded, actionable errors for the domwire CLI.
//
// Each error has a code (e.g. "E101") registered with a message, a longer
// explanation and a documentation link. Errors about the project file can
// carry its location, and Format prints the offending lines:
//
//	ERROR E101: Invalid configuration file
//
//	  domwire.json:4:17
//
//	       3 │   "server": {
//	  →    4 │     "address": 8080,
//	         │                ^
//
//	  Hint: address must be a string such as ":8080"
//
// Library packages under pkg/ use plain sentinel errors instead.
package errors
