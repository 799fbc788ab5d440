// Package sse frames a named event and a JSON payload into the
// text/event-stream wire format. It owns the framing only; transport
// (HTTP response writer, flushing, CORS) is the embedding application's
// concern and out of scope here.
package sse

import (
	"encoding/json"
	"fmt"
)

// Frame renders event as an SSE record: "event: <name>\ndata: <json>\n\n".
// data is JSON-marshaled; a marshal failure frames an error event instead
// of returning an error, since a broken stream frame is worse than a
// degraded one for a fire-and-forget writer.
func Frame(event string, data any) string {
	payload, err := json.Marshal(data)
	if err != nil {
		payload, _ = json.Marshal(map[string]string{"error": fmt.Sprintf("sse: marshal %s: %v", event, err)})
		event = "error"
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload)
}
