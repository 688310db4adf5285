// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"bytes"
	"io"
)

// maxFrameSize bounds one SSE line.
const maxFrameSize = 4 << 20

// sseDecoder reads the data payloads of a Server-Sent Events stream. Event
// names, ids and retry hints are not used by the binding and are skipped.
type sseDecoder struct {
	scanner *bufio.Scanner
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64<<10), maxFrameSize)
	return &sseDecoder{scanner: s}
}

// next returns the data of the next event, joining multi-line data with
// newlines. It returns io.EOF at the end of the stream.
func (d *sseDecoder) next() ([]byte, error) {
	var data []byte
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			if data != nil {
				return data, nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if data != nil {
			data = append(data, '\n')
		}
		data = append(data, value...)
		if data == nil {
			data = []byte{}
		}
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	if data != nil {
		return data, nil
	}
	return nil, io.EOF
}
