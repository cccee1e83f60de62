package payload

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func samplePayload() Payload {
	return Payload{
		MedicineID:      "M1",
		BatchNumber:     "B7",
		ManufactureDate: date("2024-01-01"),
		ExpiryDate:      date("2026-01-01"),
		IssuerID:        "S1",
		Nonce:           "3fa85f64-5717-4562-b3fc-2c963f66afa6",
	}
}

func TestEncodeDeterministic(t *testing.T) {
	p := samplePayload()
	a, err := Encode(p)
	require.NoError(t, err)
	b, err := Encode(p)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "same field values must produce byte-identical output")
	assert.True(t, bytes.HasPrefix(a, []byte(FormatVersion+"|")), "version segment must lead the byte stream")
}

func TestRoundTripStability(t *testing.T) {
	p := samplePayload()
	enc, err := Encode(p)
	require.NoError(t, err)

	decoded, err := Decode(enc)
	require.NoError(t, err)
	reenc, err := Encode(decoded)
	require.NoError(t, err)
	assert.Equal(t, enc, reenc, "encode(decode(encode(P))) must equal encode(P)")
}

func TestEncodeIgnoresTimeOfDay(t *testing.T) {
	p := samplePayload()
	q := p
	q.ManufactureDate = p.ManufactureDate.Add(11 * time.Hour)
	a, err := Encode(p)
	require.NoError(t, err)
	b, err := Encode(q)
	require.NoError(t, err)
	assert.Equal(t, a, b, "dates encode as calendar dates, time of day must not leak in")
}

func TestEncodeInjective(t *testing.T) {
	base := samplePayload()
	variants := []Payload{}
	for _, mutate := range []func(*Payload){
		func(p *Payload) { p.MedicineID = "M2" },
		func(p *Payload) { p.BatchNumber = "B8" },
		func(p *Payload) { p.ExpiryDate = date("2026-01-02") },
		func(p *Payload) { p.IssuerID = "S2" },
		func(p *Payload) { p.Nonce = "other-nonce" },
	} {
		q := base
		mutate(&q)
		variants = append(variants, q)
	}

	seen := map[string]bool{}
	all := append([]Payload{base}, variants...)
	for _, p := range all {
		enc, err := Encode(p)
		require.NoError(t, err)
		assert.False(t, seen[string(enc)], "distinct payloads must not share an encoding")
		seen[string(enc)] = true
	}
}

func TestEncodeRejectsMalformed(t *testing.T) {
	cases := map[string]func(*Payload){
		"empty medicineId": func(p *Payload) { p.MedicineID = "" },
		"empty batchNo":    func(p *Payload) { p.BatchNumber = " " },
		"empty issuerId":   func(p *Payload) { p.IssuerID = "" },
		"empty nonce":      func(p *Payload) { p.Nonce = "" },
		"zero mfgDate":     func(p *Payload) { p.ManufactureDate = time.Time{} },
		"zero expiryDate":  func(p *Payload) { p.ExpiryDate = time.Time{} },
		"expiry before manufacture": func(p *Payload) {
			p.ManufactureDate = date("2026-01-01")
			p.ExpiryDate = date("2024-01-01")
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := samplePayload()
			mutate(&p)
			_, err := Encode(p)
			require.Error(t, err)
			var decodeErr *DecodeError
			assert.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	valid, err := Encode(samplePayload())
	require.NoError(t, err)

	cases := map[string][]byte{
		"no version segment":  []byte(`{"medicineId":"M1"}`),
		"unknown version":     append([]byte("MAQ9|"), valid[len(FormatVersion)+1:]...),
		"invalid JSON":        []byte(FormatVersion + `|{"medicineId":`),
		"unknown field":       []byte(FormatVersion + `|{"medicineId":"M1","batchNo":"B7","mfgDate":"2024-01-01","expiryDate":"2026-01-01","issuerId":"S1","nonce":"n","extra":1}`),
		"bad date format":     []byte(FormatVersion + `|{"medicineId":"M1","batchNo":"B7","mfgDate":"01/01/2024","expiryDate":"2026-01-01","issuerId":"S1","nonce":"n"}`),
		"missing field":       []byte(FormatVersion + `|{"medicineId":"M1","mfgDate":"2024-01-01","expiryDate":"2026-01-01","issuerId":"S1","nonce":"n"}`),
		"trailing data":       append(append([]byte{}, valid...), []byte(`{"x":1}`)...),
		"datetime not a date": []byte(FormatVersion + `|{"medicineId":"M1","batchNo":"B7","mfgDate":"2024-01-01T10:00:00Z","expiryDate":"2026-01-01","issuerId":"S1","nonce":"n"}`),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			require.Error(t, err)
			var decodeErr *DecodeError
			assert.ErrorAs(t, err, &decodeErr, "malformed input must fail with DecodeError")
		})
	}
}

func TestHashStable(t *testing.T) {
	p := samplePayload()
	a, err := Hash(p)
	require.NoError(t, err)
	b, err := Hash(p)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	q := p
	q.BatchNumber = "B8"
	c, err := Hash(q)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestValidateRequest(t *testing.T) {
	ok := []byte(`{"medicineId":"M1","batchNo":"B7","mfgDate":"2024-01-01","expiryDate":"2026-01-01","issuerId":"S1"}`)
	assert.NoError(t, ValidateRequest(ok))

	bad := [][]byte{
		[]byte(`{"medicineId":"M1"}`),
		[]byte(`{"medicineId":"","batchNo":"B7","mfgDate":"2024-01-01","expiryDate":"2026-01-01","issuerId":"S1"}`),
		[]byte(`{"medicineId":"M1","batchNo":"B7","mfgDate":"Jan 1","expiryDate":"2026-01-01","issuerId":"S1"}`),
		[]byte(`{"medicineId":"M1","batchNo":"B7","mfgDate":"2024-01-01","expiryDate":"2026-01-01","issuerId":"S1","unknown":true}`),
	}
	for _, body := range bad {
		assert.Error(t, ValidateRequest(body), "should reject %s", string(body))
	}
}
