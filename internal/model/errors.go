package model

import "errors"

var (
	// ErrSelectorsRequired is returned when a save request carries no selectors.
	ErrSelectorsRequired = errors.New("at least one selector is required")

	// ErrSourceURLRequired is returned when a save request is missing the page URL.
	ErrSourceURLRequired = errors.New("source url is required")

	// ErrSelectionNotFound is returned when a saved selection is not found.
	ErrSelectionNotFound = errors.New("selection not found")

	// ErrNoDocument is returned when an operation needs a loaded document and none is loaded.
	ErrNoDocument = errors.New("no document loaded")

	// ErrEmptyDocument is returned when the page fetch produced no content.
	ErrEmptyDocument = errors.New("fetched document is empty")

	// ErrInvalidURL is returned when a page URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("url must be an absolute http or https url")

	// ErrFetchFailed is returned when the page could not be retrieved.
	ErrFetchFailed = errors.New("page could not be fetched")

	// ErrPersistence wraps failures of the selection store so callers can offer a retry.
	ErrPersistence = errors.New("selection could not be saved")

	// ErrMalformedMessage is returned when a realtime frame is not a valid message.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrInvalidSelector is returned when a selector string cannot be parsed.
	ErrInvalidSelector = errors.New("invalid selector")
)
