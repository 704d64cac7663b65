package esl

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// readMessage reads one ESL frame: MIME-style headers, a blank line,
// and an optional Content-Length body.
func readMessage(r *bufio.Reader) (*Message, error) {
	headers, err := readHeaders(r)
	if err != nil {
		return nil, err
	}

	msg := &Message{Headers: headers}

	if cl := headers["Content-Length"]; cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid Content-Length %q", cl)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		msg.Body = string(body)
	}

	switch headers["Content-Type"] {
	case "command/reply":
		msg.Kind = KindReply
	case "api/response":
		msg.Kind = KindAPIResponse
	case "text/event-plain":
		msg.Kind = KindEvent
		msg.EventHeaders = parseEventBody(msg.Body)
	case "log/data":
		msg.Kind = KindLog
		// The log level rides in the frame headers for log/data.
	case "text/disconnect-notice":
		msg.Kind = KindDisconnect
	default:
		// auth/request is handled during the handshake; anything else
		// unexpected is surfaced as a reply so callers see it.
		msg.Kind = KindReply
	}

	return msg, nil
}

func readHeaders(r *bufio.Reader) (map[string]string, error) {
	headers := make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(headers) == 0 {
				// Tolerate stray blank lines between frames.
				continue
			}
			return headers, nil
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
}

// parseEventBody decodes the header block of a text/event-plain body.
// Values are URL-encoded by the server. A trailing free-form body
// (after a blank line) is stored under the pseudo-header "_body".
func parseEventBody(body string) map[string]string {
	headers := make(map[string]string)
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			if rest := strings.Join(lines[i+1:], "\n"); rest != "" {
				headers["_body"] = rest
			}
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		headers[strings.TrimSpace(key)] = value
	}
	return headers
}
