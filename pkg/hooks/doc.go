// Package hooks wires internal hook records into a host event bus.
//
// A Record binds a callback to an event, optionally on behalf of a
// subscriber, at a priority. Handlers decide when records reach the bus:
//
//   - DirectHandler registers on Add and deregisters on Remove.
//   - BufferedHandler keeps records until Run and takes them off on Reset.
//   - ScopedHandler registers its added records, and suspends its removed
//     ones, only between a start and an end event.
//
// Service is a stateless dispatcher that forwards AddAction, AddFilter,
// RemoveAction and RemoveFilter to a handler chosen per kind or per call.
//
// Example:
//
//	bus := hooks.NewMemoryBus()
//	svc := hooks.NewDefaultService(bus)
//	_ = svc.AddAction("init", "boot", func(ctx context.Context, args ...any) any {
//		return nil
//	})
//	bus.DoAction(ctx, "init")
package hooks
