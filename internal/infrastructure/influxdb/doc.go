// Package influxdb records simulation variable history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes and health monitoring. The bridge writes one
// point per published value change, so the history matches what broker
// subscribers saw.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Client.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteVariableValue("PLANE ALTITUDE", "feet", 0, 3500)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered to the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
