package mqtt

import (
	"fmt"
	"unicode/utf8"

	"github.com/fsmosquito/fsmosquito-client/internal/topics"
)

// handleMessage routes one inbound message to its typed event.
//
// The payload must be UTF-8 text. The first ingress route matching the
// topic wins; an unmatched topic is ignored. A body that cannot be decoded
// is logged and dropped.
func (c *Client) handleMessage(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("MQTT handler panic recovered", fmt.Errorf("%v", r), "topic", topic)
		}
	}()

	c.received.Add(1)
	defer c.evts.MessageReceived.Publish(MessageReceived{Topic: topic})

	if !utf8.Valid(payload) {
		c.logWarn("dropping MQTT message with non UTF-8 payload", "topic", topic)
		return
	}

	route, ok := c.router.Match(topic)
	if !ok {
		return
	}
	c.logDebug("MQTT request received", "topic", topic, "kind", route.Kind.String())

	switch route.Kind {
	case topics.KindReportStatus:
		req, err := topics.DecodeStatusRequest(payload)
		if err != nil {
			c.logWarn("dropping status request", "topic", topic, "error", err)
			return
		}
		if !req.Wants() {
			return
		}
		c.evts.StatusRequested.Publish(StatusRequested{Directed: route.Directed})

	case topics.KindSubscribe:
		datums, err := topics.DecodeSubscribe(payload)
		if err != nil {
			c.logWarn("dropping subscribe request", "topic", topic, "error", err)
			return
		}
		c.evts.SubscribeRequested.Publish(SubscribeRequested{Datums: datums})

	case topics.KindSetValue:
		req, err := topics.DecodeSetValue(route, payload)
		if err != nil {
			c.logWarn("dropping set-value request", "topic", topic, "error", err)
			return
		}
		c.evts.SetValueRequested.Publish(SetValueRequested{Request: req})
	}
}
