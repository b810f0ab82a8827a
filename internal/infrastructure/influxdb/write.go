package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementSimVar = "simvar"
	measurementStatus = "connection_status"
)

// WriteVariableValue records one observed value of a simulation variable.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Point:
//
//	simvar,client_id=<id>,datum_name=<name>,object_id=<n>,units=<units> value=<v>
//
// Example:
//
//	client.WriteVariableValue("PLANE ALTITUDE", "feet", 0, 3500)
func (c *Client) WriteVariableValue(datumName, units string, objectID uint32, value float64) {
	c.writePoint(measurementSimVar,
		map[string]string{
			"client_id":  c.clientID,
			"object_id":  strconv.FormatUint(uint64(objectID), 10),
			"datum_name": datumName,
			"units":      units,
		},
		map[string]interface{}{
			"value": value,
		},
	)
}

// WriteStatus records a connection status change.
//
// Parameters:
//   - source: "mqtt" or "simconnect"
//   - status: The status published for that side, e.g. "Opened"
func (c *Client) WriteStatus(source, status string) {
	c.writePoint(measurementStatus,
		map[string]string{
			"client_id": c.clientID,
			"source":    source,
		},
		map[string]interface{}{
			"status": status,
		},
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
