// Package mqtt provides the message broker side of the FSMosquito bridge.
//
// This package manages:
//   - The broker session, with a retained "Disconnected" last will
//   - Ingress subscriptions for this client's request topics
//   - Routing inbound messages to typed events
//   - A FIFO outbound queue that survives disconnects
//   - A single randomised reconnect attempt after an unexpected drop
//
// # Architecture
//
// Client holds the session logic and talks to the broker through the
// Transport interface. PahoTransport implements it with
// github.com/eclipse/paho.mqtt.golang; tests substitute a recording fake.
//
//	Adapter ↔ mqtt.Client ↔ Transport ↔ Broker
//
// # Delivery
//
// Every Publish enqueues a message and then drains the queue. Draining only
// happens while connected, sends strictly in order, and stops at the first
// failure: the failed message goes back to the head and the queue stays
// halted until the next successful connect. Messages are lost if the
// process exits first.
//
// # Usage
//
//	transport := mqtt.NewPahoTransport(cfg.MQTT, cfg.Client.ID)
//	client := mqtt.NewClient(cfg.MQTT, cfg.Client.ID, transport, schedule.NewScheduler())
//	client.Events().SubscribeRequested.Subscribe(func(e mqtt.SubscribeRequested) {
//	    // ...
//	})
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishVariableValue("PLANE ALTITUDE", 0, 3500)
package mqtt
