package model

import "errors"

var (
	// ErrNoResponse is returned when a model closes its stream without a final response.
	ErrNoResponse = errors.New("model: no final response")
	// ErrScriptExhausted is returned by ScriptedModel when no steps remain.
	ErrScriptExhausted = errors.New("model: script exhausted")
)
