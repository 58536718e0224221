// Package dispatch routes events between independent modules.
//
// A Dispatcher keeps the subscription registry and fans every published
// event out to all handlers subscribed to its kind. Handlers of one publish
// run concurrently and a failing (or panicking) handler is logged and
// isolated: it neither cancels its siblings nor fails the publish, it is
// only reported in the returned Outcome.
//
// A Bridge is the only path producers running on their own goroutines (a
// camera sampling loop, a speech-to-text callback, a websocket reader) use
// to get an event published. Submit enqueues and returns; a single consumer
// goroutine drains the queue and publishes events one at a time in the order
// they were accepted.
//
//	d := dispatch.New()
//	d.Subscribe(events.KindVoiceCommandDetected, handleCommand, dispatch.WithName("brain"))
//
//	bridge := dispatch.NewBridge(d)
//	_ = bridge.Start(ctx)
//	defer bridge.Stop()
//
//	if err := bridge.Submit(events.NewVoiceCommandDetected("status")); err != nil {
//		// dispatch.ErrBridgeUnavailable: drop, retry or buffer
//	}
package dispatch
