// Handler registration and event dispatch.
//
// Handlers are registered at startup through a Builder, which produces an immutable Registry. The Dispatcher runs every registration matching an event, in registration order, isolating each invocation's errors and panics from the others and from the delivery loop.
package plugin
