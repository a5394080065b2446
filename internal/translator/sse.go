package translator

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

const doneMarker = "[DONE]"

// scanSSEData walks an SSE stream and invokes fn for every data payload.
// Event name lines are skipped; the payload handed to fn never includes the
// "data: " prefix. fn returning false stops the scan.
func scanSSEData(reader io.Reader, fn func(data []byte) bool) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data: ")))
		if !fn(data) {
			return nil
		}
	}
	return scanner.Err()
}

func writeSSEData(w io.Writer, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(raw)
	w.Write([]byte("\n\n"))
}

func writeSSEEvent(w io.Writer, event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	w.Write([]byte("event: "))
	w.Write([]byte(event))
	w.Write([]byte("\ndata: "))
	w.Write(raw)
	w.Write([]byte("\n\n"))
}

func writeSSEDone(w io.Writer) {
	w.Write([]byte("data: " + doneMarker + "\n\n"))
}
