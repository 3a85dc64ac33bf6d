package policy

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	emailPattern     = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	mobilePattern    = regexp.MustCompile(`(?:\+61\s?|\b0)4\d{2}[\s-]?\d{3}[\s-]?\d{3}\b`)
	landlinePattern  = regexp.MustCompile(`(?:\+61\s?|\b0)[2378][\s-]?\d{4}[\s-]?\d{4}\b`)
	studentIDPattern = regexp.MustCompile(`(?i)\b(student\s*(?:id|number|no\.?)\s*[:#]?\s*)\d{6,10}\b`)
)

// MaskPIIString redacts contact details and labelled student numbers from free text.
func MaskPIIString(value string) string {
	masked := emailPattern.ReplaceAllString(value, "[email_redacted]")
	masked = mobilePattern.ReplaceAllString(masked, "[phone_redacted]")
	masked = landlinePattern.ReplaceAllString(masked, "[phone_redacted]")
	masked = studentIDPattern.ReplaceAllString(masked, "${1}[id_redacted]")
	return masked
}

// MaskPIIJSON masks every string value inside a JSON document. Input that is
// not valid JSON is masked as plain text.
func MaskPIIJSON(payload json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return append(json.RawMessage(nil), payload...)
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return json.RawMessage(MaskPIIString(string(payload)))
	}

	encoded, err := json.Marshal(maskValue(decoded))
	if err != nil {
		return append(json.RawMessage(nil), payload...)
	}
	return encoded
}

func maskValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		cloned := make(map[string]any, len(typed))
		for key, child := range typed {
			cloned[key] = maskValue(child)
		}
		return cloned
	case []any:
		cloned := make([]any, 0, len(typed))
		for _, child := range typed {
			cloned = append(cloned, maskValue(child))
		}
		return cloned
	case string:
		return MaskPIIString(typed)
	default:
		return value
	}
}
