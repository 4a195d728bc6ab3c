package handlers

import (
	"encoding/json"
	"fmt"
	"io"
)

// writeSSEEvent serialises the payload as one server-sent event. Marshal
// failures are swallowed; the stream simply skips the frame.
func writeSSEEvent(w io.Writer, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
