// Package agentloop implements the turn-based agent orchestration engine: a
// Runner drives a conversation with a model, dispatching the tool calls it
// emits against a confined execution environment and feeding results back
// until the model answers or the turn budget runs out.
//
// The moving parts:
//
//   - Conversation: append-only message log with tool-call pairing
//     invariants, owned by one run.
//   - Registry: name to capability map with JSON Schema argument validation
//     and bounded-concurrency dispatch.
//   - Bus: ordered publish/subscribe transport; publishers block on slow
//     subscribers instead of dropping events.
//   - Runner: the state machine Idle -> AwaitingModel <-> ExecutingTools ->
//     Done | Failed | Aborted.
//   - Workspace / LocalEnvironment: path-confined filesystem and shell
//     access for the built-in tools.
//
// Construct the collaborators explicitly and wire them together; there are
// no package-level singletons:
//
//	ws, _ := agentloop.NewWorkspace(targetDir)
//	env := agentloop.NewLocalEnvironment(ws)
//	reg := agentloop.NewRegistry(4)
//	agentloop.RegisterCoreTools(reg, env, 120000, 600000)
//	bus := agentloop.NewBus(256)
//	runner := agentloop.NewRunner(client, reg, bus, env,
//	    agentloop.WithModel("claude-sonnet-4-5"),
//	    agentloop.WithMaxTurns(25),
//	)
//	result := runner.Run(ctx, "list the files in this directory")
package agentloop
