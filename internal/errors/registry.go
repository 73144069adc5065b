package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://domwire.dev/docs/errors/"

var registry = map[string]ErrorTemplate{
	// Configuration (E100-E119)
	"E100": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "domwire looks for domwire.json in the current directory and its parents.",
		DocURL:   docBase + "E100",
	},
	"E101": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "domwire.json is not valid JSON or a field has the wrong type.",
		DocURL:   docBase + "E101",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A field in domwire.json holds a value domwire cannot use.",
		DocURL:   docBase + "E102",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Could not write configuration file",
		DocURL:   docBase + "E103",
	},

	// Pages (E120-E139)
	"E120": {
		Category: CategoryCLI,
		Message:  "Pages directory not readable",
		Detail:   "Every .html file in the pages directory is served as a page.",
		DocURL:   docBase + "E120",
	},
	"E121": {
		Category: CategoryCLI,
		Message:  "Page could not be registered",
		Detail:   "Page URLs must be unique and cannot live under /_domwire/.",
		DocURL:   docBase + "E121",
	},

	// Storage (E140-E159)
	"E140": {
		Category: CategoryStorage,
		Message:  "Download store could not be opened",
		DocURL:   docBase + "E140",
	},

	// Server (E160-E179)
	"E160": {
		Category: CategoryServer,
		Message:  "Server stopped with an error",
		DocURL:   docBase + "E160",
	},
}
