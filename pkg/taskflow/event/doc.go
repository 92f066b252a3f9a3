// Package event provides an event envelope and an in-process publish/subscribe
// bus. taskflow bridges run notifications onto a Bus so that consumers outside
// the run goroutine (loggers, dashboards, tests) can observe a flow without
// slowing it down.
//
//	bus := event.NewBus(event.BusConfig{})
//	defer bus.Close()
//
//	bus.Subscribe(event.HandlerFunc(func(ctx context.Context, evt event.Event) error {
//	    fmt.Println(evt.Type(), evt.CorrelationID())
//	    return nil
//	}), "task.state_changed")
//
// Each subscription is served by its own goroutine, so events reach a given
// subscriber in the order they were published.
package event
