package openaicompat

import (
	"bufio"
	"io"
	"strings"
)

// sseScanner wraps bufio.Scanner to only surface "data: ..." lines from an
// upstream text/event-stream body, skipping blank separators and comments.
type sseScanner struct {
	s   *bufio.Scanner
	cur string
}

func newSSEScanner(r io.Reader) *sseScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseScanner{s: s}
}

func (sc *sseScanner) Scan() bool {
	for sc.s.Scan() {
		line := strings.TrimRight(sc.s.Text(), "\r")
		if strings.HasPrefix(line, "data:") {
			sc.cur = line
			return true
		}
	}
	return false
}

func (sc *sseScanner) Text() string { return sc.cur }
