package export

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Parser deserializes an export file back into a Document.
type Parser interface {
	Parse(data []byte) (*Document, error)
}

// ParserFor returns the parser for f.
func ParserFor(f Format) Parser {
	if f == FormatJSON {
		return &JSONParser{}
	}
	return &MarkdownParser{}
}

// Detect guesses the format of an export file from its content.
func Detect(data []byte) Format {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return FormatJSON
	}
	return FormatMarkdown
}

// Parse reads an export file of either format.
func Parse(data []byte) (*Document, error) {
	return ParserFor(Detect(data)).Parse(data)
}

// JSONParser parses a JSON-encoded Document.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON export: %w", err)
	}
	return &doc, nil
}

// MarkdownParser extracts the embedded payload from a Markdown export.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(data []byte) (*Document, error) {
	content := string(data)

	if !strings.Contains(content, versionSentinel) {
		return nil, fmt.Errorf("not a storyline export: missing version sentinel")
	}

	start := strings.Index(content, dataPrefix)
	if start == -1 {
		return nil, fmt.Errorf("not a storyline export: missing data payload")
	}
	start += len(dataPrefix)
	end := strings.Index(content[start:], dataSuffix)
	if end == -1 {
		return nil, fmt.Errorf("not a storyline export: malformed data payload")
	}
	encoded := content[start : start+end]

	jsonBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("not a storyline export: corrupted base64 payload: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("not a storyline export: failed to parse embedded JSON: %w", err)
	}
	return &doc, nil
}
