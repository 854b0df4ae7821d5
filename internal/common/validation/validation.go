// internal/common/validation/validation.go
package validation

import (
	"fmt"
	"regexp"

	"github.com/xeipuuv/gojsonschema"
)

// dispatchRequestSchema constrains the POST /api/notifications/send body.
// Webhook payloads are deliberately NOT schema-validated; they are parsed
// loosely so unknown carrier events degrade to a no-op.
const dispatchRequestSchema = `{
	"type": "object",
	"required": ["type", "recipientType", "channels", "body"],
	"properties": {
		"type":          {"type": "string", "minLength": 1},
		"recipientType": {"type": "string", "enum": ["admin", "customer"]},
		"recipientEmail": {"type": "string"},
		"recipientPhone": {"type": "string"},
		"channels": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "enum": ["email", "sms"]}
		},
		"subject":   {"type": "string"},
		"body":      {"type": "string", "minLength": 1},
		"variables": {"type": "object"}
	},
	"additionalProperties": false
}`

var dispatchSchema = gojsonschema.NewStringLoader(dispatchRequestSchema)

// ValidateDispatchRequest checks a raw dispatch request body against the
// schema and returns the first violation, or nil when valid.
func ValidateDispatchRequest(body []byte) error {
	result, err := gojsonschema.Validate(dispatchSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("request is not valid JSON: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("%s: %s", errs[0].Field(), errs[0].Description())
		}
		return fmt.Errorf("request failed schema validation")
	}
	return nil
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-\(\)]{10,}$`)
)

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePhone validates basic phone number format
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(phone)
}
