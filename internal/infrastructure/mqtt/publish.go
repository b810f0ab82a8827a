package mqtt

import (
	"fmt"

	"github.com/fsmosquito/fsmosquito-client/internal/topics"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish queues a message and tries to deliver the queue.
//
// The topic is template with args substituted in order; with no args the
// client id fills {0}. The payload is serialised now, so later changes to
// a Structured value do not affect the queued message.
//
// Publish does not need a session: while disconnected, or after a failed
// send, messages wait in the queue until the next successful connect.
//
// Parameters:
//   - template: A topic template from the topics package
//   - payload: Bytes, Text, Number or Structured
//   - retain: Whether the broker should keep the message as the topic's last value
//   - args: Template arguments
//
// Returns:
//   - error: ErrClosed after Close, or ErrPublishFailed/ErrInvalidTopic when
//     the message cannot be composed
func (c *Client) Publish(template string, payload Payload, retain bool, args ...any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if len(args) == 0 {
		args = []any{c.clientID}
	}
	topic := topics.Format(template, args...)
	if topic == "" {
		return ErrInvalidTopic
	}

	body, contentType, err := payload.Encode()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	if len(body) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(body), maxPayloadSize)
	}

	c.queue.Push(OutboundMessage{
		Topic:       topic,
		Payload:     body,
		ContentType: contentType,
		Retain:      retain,
	})
	c.published.Add(1)

	c.drain()
	return nil
}

// PublishClientStatus publishes this client's retained connection status.
func (c *Client) PublishClientStatus(status string) error {
	return c.Publish(topics.ClientStatus, Text(status), true, c.clientID)
}

// PublishSimConnectStatus publishes the simulation host status.
func (c *Client) PublishSimConnectStatus(status string) error {
	return c.Publish(topics.SimConnectStatus, Text(status), false, c.clientID)
}

// PublishVariableValue publishes a datum's value, retained, under its
// normalised name.
func (c *Client) PublishVariableValue(datumName string, objectID uint32, value float64) error {
	return c.Publish(topics.VariableValue, Number(value), true,
		c.clientID, objectID, topics.NormalizeDatumName(datumName))
}

// drain sends queued messages in order while a session is open. A failed
// send puts the message back at the head and halts draining until the next
// successful connect.
func (c *Client) drain() {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	for {
		c.mu.Lock()
		if c.state != StateConnected || c.halted {
			c.mu.Unlock()
			return
		}
		gen := c.generation
		c.mu.Unlock()

		msg, ok := c.queue.Pop()
		if !ok {
			return
		}

		if err := c.transport.Publish(msg, c.qos); err != nil {
			c.queue.PushFront(msg)
			c.mu.Lock()
			if c.generation == gen {
				c.halted = true
			}
			c.mu.Unlock()

			c.sendFailures.Add(1)
			c.logWarn("MQTT publish failed, holding queue until reconnect",
				"topic", msg.Topic, "queued", c.queue.Len(), "error", err)
			return
		}

		c.sent.Add(1)
		c.logDebug("MQTT message sent", "topic", msg.Topic, "content_type", msg.ContentType.String())
		c.evts.MessageTransmitted.Publish(MessageTransmitted{Topic: msg.Topic})
	}
}
