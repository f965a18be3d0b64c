/*
Package nodeclient provides a JSON-RPC client for a Clutch node that multiplexes many concurrent calls over a single long-lived WebSocket connection.

There are two messages in this protocol: "request" envelopes are sent client->node, and "response" envelopes are sent node->client. The schema for these messages is described in wire.go.

The client proceeds as follows:

1. A supervisor goroutine dials the node. On success it publishes the connection so calls can write to it, and starts reading frames.
2. Each call generates a fresh correlation ID, registers a pending entry for it, and hands the serialized request to the connection's writer.
3. The reader decodes each incoming frame and resolves the pending entry whose ID the frame echoes. Frames that match nothing are logged and dropped.
4. A call returns when its entry is resolved, or when its timeout expires, whichever happens first.

When the connection is lost for any reason, every pending call is abandoned with ErrConnectionLost, and the supervisor redials after a fixed backoff. It retries forever, so calls made while disconnected fail fast with ErrNotConnected rather than queueing.

Requests in flight across a disconnect are never retried by the client.
*/
package nodeclient
