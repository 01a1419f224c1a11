package enrich

import (
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"
)

// phoneSchema is the only part of the upstream payload the proxy relies on.
const phoneSchema = `{
	"type": "object",
	"required": ["person"],
	"properties": {
		"person": {
			"type": "object",
			"required": ["phone_numbers"],
			"properties": {
				"phone_numbers": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["sanitized_number"],
						"properties": {
							"sanitized_number": {"type": "string"}
						}
					}
				}
			}
		}
	}
}`

type matchResponse struct {
	Person struct {
		PhoneNumbers []struct {
			SanitizedNumber string `json:"sanitized_number"`
		} `json:"phone_numbers"`
	} `json:"person"`
}

type phoneExtractor struct {
	schema *gojsonschema.Schema
}

func newPhoneExtractor() (*phoneExtractor, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(phoneSchema))
	if err != nil {
		return nil, err
	}
	return &phoneExtractor{schema: s}, nil
}

// extract returns the first sanitized number, or ok=false with the schema
// violations when the payload does not have the expected shape.
func (p *phoneExtractor) extract(doc []byte) (phone string, ok bool, violations []string) {
	res, err := p.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return "", false, []string{err.Error()}
	}
	if !res.Valid() {
		for _, e := range res.Errors() {
			violations = append(violations, e.String())
		}
		return "", false, violations
	}

	var m matchResponse
	if err := json.Unmarshal(doc, &m); err != nil {
		return "", false, []string{err.Error()}
	}
	if len(m.Person.PhoneNumbers) == 0 {
		return "", true, nil
	}
	return m.Person.PhoneNumbers[0].SanitizedNumber, true, nil
}
