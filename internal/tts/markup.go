package tts

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"inkvoice/internal/services"
)

// NormalizeMarkup validates speech synthesis markup and returns the form
// handed to providers. Plain text fragments are wrapped in a speak root;
// malformed markup (unbalanced or stray tags) is rejected so a bad fragment
// never reaches a billable synthesis call.
func NormalizeMarkup(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", services.Wrap(services.ErrInvalidInput, "synthesis", "validate_markup", "markup is empty", nil)
	}
	if !strings.HasPrefix(trimmed, "<speak") {
		trimmed = "<speak>" + trimmed + "</speak>"
	}
	if err := checkWellFormed(trimmed); err != nil {
		return "", services.Wrap(services.ErrInvalidInput, "synthesis", "validate_markup", err.Error(), nil)
	}
	return trimmed, nil
}

func checkWellFormed(markup string) error {
	decoder := xml.NewDecoder(strings.NewReader(markup))
	depth := 0
	sawRoot := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("malformed markup: %v", err)
		}
		switch element := token.(type) {
		case xml.StartElement:
			if depth == 0 {
				if sawRoot {
					return fmt.Errorf("multiple root elements")
				}
				if element.Name.Local != "speak" {
					return fmt.Errorf("root element must be speak, got %s", element.Name.Local)
				}
				sawRoot = true
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(strings.TrimSpace(string(element))) > 0 {
				return fmt.Errorf("content outside speak element")
			}
		}
	}
	if !sawRoot {
		return fmt.Errorf("missing speak element")
	}
	if depth != 0 {
		return fmt.Errorf("missing closing tag")
	}
	return nil
}
