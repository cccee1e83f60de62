package payload

import (
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

// qrPayloadSchemaV1 is the issuance input contract. Operators can swap it
// with QR_SCHEMA_PATH for staged rollouts of a newer schema.
const qrPayloadSchemaV1 = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "QRPayloadRequest",
  "type": "object",
  "required": ["medicineId", "batchNo", "mfgDate", "expiryDate", "issuerId"],
  "additionalProperties": false,
  "properties": {
    "medicineId": { "type": "string", "minLength": 1, "maxLength": 128 },
    "batchNo":    { "type": "string", "minLength": 1, "maxLength": 64 },
    "mfgDate":    { "type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$" },
    "expiryDate": { "type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$" },
    "issuerId":   { "type": "string", "minLength": 1, "maxLength": 128 },
    "nonce":      { "type": "string", "maxLength": 64 }
  }
}`

func schemaLoader() gojsonschema.JSONLoader {
	if env := os.Getenv("QR_SCHEMA_PATH"); env != "" {
		return gojsonschema.NewReferenceLoader("file://" + env)
	}
	return gojsonschema.NewStringLoader(qrPayloadSchemaV1)
}

// ValidateRequest validates a raw issuance request body against the QR
// payload schema before any field is trusted.
func ValidateRequest(raw []byte) error {
	result, err := gojsonschema.Validate(schemaLoader(), gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		errStr := ""
		for _, e := range result.Errors() {
			errStr += e.String() + "; "
		}
		return fmt.Errorf("request failed schema validation: %s", errStr)
	}
	return nil
}
