// Package agent drives one conversation turn between a completion service
// and a tool registry.
//
// Loop is a bounded state machine with three states:
//
//	AwaitingModel ──tool requested──▶ DispatchingTool
//	      ▲                                 │
//	      └──────── tool turns appended ────┘
//	AwaitingModel ──natural stop──▶ Done
//
// Every assistant and tool turn is appended to the caller's history in
// order, so a tool turn always follows the assistant turn that requested
// it. Tool failures are fed back to the model as {"error": ...} results;
// only completion failures and an exceeded iteration cap abort a run.
//
// Lifecycle callbacks (CallbackManager) observe or veto model and tool
// steps, and Instruction supplies a templated system prompt for histories
// that carry none.
package agent
