// Package model defines the provider-agnostic completion service contract
// used by the agent loop.
//
// A Request carries the full ordered conversation (core.Turn), the tool
// catalog and an optional temperature. A Model streams partial responses and
// one final Response whose StopReason is normalized across vendors
// (NormalizeFinishReason). Providers live in sub-packages (openai, anthropic)
// so the loop stays decoupled from vendor SDKs. ScriptedModel replays a fixed
// queue of responses for tests and offline demos.
package model
