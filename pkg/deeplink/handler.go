package deeplink

// CompletionFunc reports the outcome of an auth flow started for a pending
// deep link: success resumes the link, failure drops it silently.
type CompletionFunc func(success bool)

// Handler receives deep link lifecycle callbacks. All fields are optional;
// a nil field is simply skipped. Callbacks are delivered one at a time on
// the dispatcher goroutine, never concurrently.
type Handler struct {
	// Received fires for every successfully parsed link, with the
	// auth decision already made. When the link was held pending auth,
	// Received fires a second time on completion with requiresAuth false.
	Received func(link *DeepLink, requiresAuth bool)

	// RequiresAuth fires when automatic handling parked a link behind
	// authentication. The host app runs its auth flow and reports back
	// through complete.
	RequiresAuth func(link *DeepLink, complete CompletionFunc)

	// Failed fires when a URL could not be parsed into a deep link.
	Failed func(rawURL string, err error)
}
