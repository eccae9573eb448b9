package utils

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ReadStringWithReader reads a trimmed line from a reader.
// Used for secrets piped on stdin when no terminal is attached.
func ReadStringWithReader(reader io.Reader) (string, error) {
	scanner := bufio.NewScanner(reader)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", errors.New("no input")
	}

	return strings.TrimSpace(scanner.Text()), nil
}
