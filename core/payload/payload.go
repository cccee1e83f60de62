package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"medauth/types/ids"
)

// FormatVersion tags the canonical byte stream so future schema revisions
// can coexist with QR codes already in circulation.
const FormatVersion = "MAQ1"

// DateFormat is the only accepted date layout: ISO-8601 calendar date, UTC.
const DateFormat = "2006-01-02"

// Payload is the signed content of a medicine QR code. Created once at
// issuance and never mutated; every verifier recomputes its canonical
// encoding from these fields.
type Payload struct {
	MedicineID      string
	BatchNumber     string
	ManufactureDate time.Time
	ExpiryDate      time.Time
	IssuerID        string
	Nonce           string
}

// DecodeError reports malformed or tampered payload bytes. Verification
// maps it to a Counterfeit outcome; issuance rejects the input outright.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "payload decode: " + e.Reason
}

// canonicalPayload fixes the field order and date formatting of the
// encoded form. Encoding goes through this struct only, so the same
// field values always produce byte-identical output.
type canonicalPayload struct {
	MedicineID      string `json:"medicineId"`
	BatchNumber     string `json:"batchNo"`
	ManufactureDate string `json:"mfgDate"`
	ExpiryDate      string `json:"expiryDate"`
	IssuerID        string `json:"issuerId"`
	Nonce           string `json:"nonce"`
}

// Validate checks that all required fields are present and dates are sane.
func (p Payload) Validate() error {
	switch {
	case strings.TrimSpace(p.MedicineID) == "":
		return &DecodeError{Reason: "medicineId is required"}
	case strings.TrimSpace(p.BatchNumber) == "":
		return &DecodeError{Reason: "batchNo is required"}
	case strings.TrimSpace(p.IssuerID) == "":
		return &DecodeError{Reason: "issuerId is required"}
	case strings.TrimSpace(p.Nonce) == "":
		return &DecodeError{Reason: "nonce is required"}
	case p.ManufactureDate.IsZero():
		return &DecodeError{Reason: "mfgDate is required"}
	case p.ExpiryDate.IsZero():
		return &DecodeError{Reason: "expiryDate is required"}
	case p.ExpiryDate.Before(p.ManufactureDate):
		return &DecodeError{Reason: "expiryDate before mfgDate"}
	}
	return nil
}

// Encode serializes the payload to its canonical byte form:
// a version segment, a separator, then compact JSON with fixed field
// order. Encoding is a pure function of the field values.
func Encode(p Payload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c := canonicalPayload{
		MedicineID:      p.MedicineID,
		BatchNumber:     p.BatchNumber,
		ManufactureDate: p.ManufactureDate.UTC().Format(DateFormat),
		ExpiryDate:      p.ExpiryDate.UTC().Format(DateFormat),
		IssuerID:        p.IssuerID,
		Nonce:           p.Nonce,
	}
	body, err := json.Marshal(c)
	if err != nil {
		return nil, &DecodeError{Reason: "marshal failed: " + err.Error()}
	}
	return append([]byte(FormatVersion+"|"), body...), nil
}

// Decode parses canonical bytes back into a Payload. Unknown versions,
// unknown fields, bad dates and missing fields all fail with *DecodeError;
// a partially populated payload is never returned.
func Decode(data []byte) (Payload, error) {
	var p Payload
	sep := bytes.IndexByte(data, '|')
	if sep < 0 {
		return p, &DecodeError{Reason: "missing version segment"}
	}
	if string(data[:sep]) != FormatVersion {
		return p, &DecodeError{Reason: fmt.Sprintf("unsupported format version %q", string(data[:sep]))}
	}

	var c canonicalPayload
	dec := json.NewDecoder(bytes.NewReader(data[sep+1:]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return p, &DecodeError{Reason: "invalid JSON: " + err.Error()}
	}
	// Trailing bytes after the JSON object would make encoding ambiguous.
	if dec.More() {
		return p, &DecodeError{Reason: "trailing data after payload"}
	}

	mfg, err := parseDate(c.ManufactureDate)
	if err != nil {
		return p, &DecodeError{Reason: "mfgDate: " + err.Error()}
	}
	exp, err := parseDate(c.ExpiryDate)
	if err != nil {
		return p, &DecodeError{Reason: "expiryDate: " + err.Error()}
	}

	p = Payload{
		MedicineID:      c.MedicineID,
		BatchNumber:     c.BatchNumber,
		ManufactureDate: mfg,
		ExpiryDate:      exp,
		IssuerID:        c.IssuerID,
		Nonce:           c.Nonce,
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("not an ISO-8601 calendar date: %q", s)
	}
	return t, nil
}

// Hash returns the SHA-256 of the canonical encoding. This is the value
// anchored on the ledger and looked up during verification.
func Hash(p Payload) (ids.ID, error) {
	enc, err := Encode(p)
	if err != nil {
		return ids.Empty, err
	}
	return ids.NewID(enc), nil
}
