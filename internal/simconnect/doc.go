// Package simconnect manages the session with the flight simulator.
//
// A Client registers one data definition per subscribed datum, polls every
// due subscription on each pulse, and raises ValueChanged only when a
// response differs from the previous value. The session is reached through
// a Provider opened by a Dialer; RelayDialer talks to a SimConnect relay
// over TCP or a Unix socket using size(2) type(2) payload frames.
//
// # Lifecycle
//
//	Disconnected -> Connecting -> Connected -> Disconnected
//
// Connection failures, host exceptions and host quits are retried on a
// fixed reconnect interval with no attempt limit; the simulator may simply
// not be running yet. Every session starts with an empty subscription
// table because the host forgets definitions when a session ends.
//
// # Usage
//
//	client := simconnect.NewClient(simconnect.Config{AppName: "FSMosquito"},
//	    &simconnect.RelayDialer{Notify: wake}, schedule.NewScheduler())
//	client.Events().ValueChanged.Subscribe(func(ev simconnect.ValueChanged) { ... })
//	client.Connect(ctx, "tcp://sim-pc:5557")
//	client.Subscribe("PLANE ALTITUDE", "feet")
package simconnect
