// Package event provides a pub-sub event bus for decoupled inter-component
// communication in teamrun.
//
// The manager, config loader and execution engine publish lifecycle events
// here so that the CLI, loggers and tests can observe them without the
// producers knowing who is listening.
//
// # Event Categories
//
// Config:
//   - [ConfigLoadedEvent]: a team configuration parsed and validated
//   - [ConfigRejectedEvent]: a directory scan skipped a file
//   - [ConfigReloadedEvent]: a watched directory was rescanned
//
// Team:
//   - [TeamBuiltEvent]: the factory produced a runnable team
//
// Run lifecycle:
//   - [RunStartedEvent], [RunCompletedEvent], [RunFailedEvent], [RunCancelledEvent]
//
// # Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeRunCompleted, func(e event.Event) {
//		done := e.(event.RunCompletedEvent)
//		fmt.Println(done.RunID, done.Duration)
//	})
//
// Handlers run synchronously on the publishing goroutine. A panicking
// handler is recovered and logged so it cannot affect other subscribers.
package event
