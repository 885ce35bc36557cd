package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// ParseEMLFile reads an .eml file and parses it
func ParseEMLFile(filePath string, opts Options) (*Message, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return ParseWithOptions(data, opts)
}

// ParseEML reads a whole message from r and parses it. The parser works on the
// complete buffer, so the read happens before any parsing starts.
func ParseEML(r io.Reader, opts Options) (*Message, error) {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("failed to read email: %w", err)
	}

	return ParseWithOptions(buf.Bytes(), opts)
}
