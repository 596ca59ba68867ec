package client

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// maxEventSize caps a single SSE event payload (64KB). A well-behaved relay
// sends small frames; anything larger indicates a broken or hostile stream.
const maxEventSize = 64 * 1024

// SSEReader parses server-sent events from a response body: `data:` fields
// accumulated until a blank line ends the event.
type SSEReader struct {
	reader *bufio.Reader
}

func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent returns the next event's data payload. Multi-line data fields are
// joined with newlines per the SSE format. Returns io.EOF when the stream
// ends cleanly.
func (s *SSEReader) ReadEvent() ([]byte, error) {
	var dataLines [][]byte
	size := 0

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line ends the event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			data := bytes.TrimPrefix(line, []byte("data:"))
			data = bytes.TrimPrefix(data, []byte(" "))
			size += len(data)
			if size > maxEventSize {
				return nil, fmt.Errorf("sse event too large: %d bytes", size)
			}
			dataLines = append(dataLines, data)
		}
		// Other fields (event:, id:, retry:, comments) are ignored.
	}
}
