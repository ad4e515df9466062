package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// PromptYesNoWithReader prompts for yes/no with custom reader/writer for testing.
// End of input counts as "no".
func PromptYesNoWithReader(prompt string, reader io.Reader, writer io.Writer) bool {
	scanner := bufio.NewScanner(reader)

	for {
		_, _ = fmt.Fprintf(writer, "%s (y/n): ", prompt)
		if !scanner.Scan() {
			return false
		}

		switch strings.TrimSpace(strings.ToLower(scanner.Text())) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
	}
}

// ReadStringWithReader reads a trimmed line from a reader.
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
