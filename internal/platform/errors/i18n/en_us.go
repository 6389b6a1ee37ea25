package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown                = "UNKNOWN"
	CodeFetchFailed            = "FETCH_FAILED"
	CodeSubscriptionOpenFailed = "SUBSCRIPTION_OPEN_FAILED"
	CodeCallbackFailed         = "CALLBACK_FAILED"
	CodeInvalidArgument        = "INVALID_ARGUMENT"
	CodeNotFound               = "NOT_FOUND"
	CodeUnavailable            = "UNAVAILABLE"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		CodeUnknown:                "Something went wrong",
		CodeFetchFailed:            "Could not load {{.cache_key}}",
		CodeSubscriptionOpenFailed: "Live updates for {{.resource}} are unavailable",
		CodeCallbackFailed:         "A live update for {{.resource}} could not be applied",
		CodeInvalidArgument:        "The request was not valid",
		CodeNotFound:               "The requested record was not found",
		CodeUnavailable:            "The data service is unavailable",
	},
}
