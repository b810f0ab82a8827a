// Package bridge joins the simulation host to the message broker.
//
// An Adapter listens to the typed events of a telemetry client and a broker
// client and turns each into a call on the other side:
//
//	simulation host opened/closed  ->  fsm/client/{id}/simconnect/status
//	polled value changed           ->  fsm/client/{id}/v/{object}/{datum} (retained)
//	report_status request          ->  fsm/client/{id}/simconnect/status
//	subscribe request              ->  telemetry Subscribe, per datum
//	set_data request               ->  telemetry Set
//
// Neither client is owned beyond Start and Stop; reconnection and queueing
// stay inside the clients.
//
// # Usage
//
//	adapter := bridge.NewAdapter(simClient, mqttClient, influxClient)
//	adapter.SetLogger(log)
//	if err := adapter.Start(ctx, simconnect.Handle("main")); err != nil {
//	    return err
//	}
//	defer adapter.Stop()
package bridge
