// Package decoder turns raw alert payloads into records, projects them onto a
// field whitelist and extracts delivery metadata.
package decoder

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/linkedin/goavro/v2"
)

// Format selects how a payload is decoded.
type Format string

const (
	// FormatAuto decodes Avro object container files by their magic bytes and
	// everything else as JSON.
	FormatAuto Format = "auto"
	FormatJSON Format = "json"
	FormatAvro Format = "avro"
)

// avroMagic opens every Avro object container file.
var avroMagic = []byte("Obj\x01")

// Config configures a Decoder.
type Config struct {
	Format Format
	// AvroSchema is the writer schema for schemaless Avro payloads. Leave it
	// empty when payloads are object container files carrying their own schema.
	AvroSchema string
	// Base64 decodes the payload from standard base64 first, as delivered by
	// the REST pull API.
	Base64 bool
}

// Decoder decodes payloads into records. It is stateless after construction
// and safe for concurrent use.
type Decoder struct {
	format Format
	codec  *goavro.Codec
	schema *writerSchema
	base64 bool
}

// New creates a Decoder from cfg.
func New(cfg Config) (*Decoder, error) {
	format := cfg.Format
	if format == "" {
		format = FormatAuto
	}
	switch format {
	case FormatAuto, FormatJSON, FormatAvro:
	default:
		return nil, fmt.Errorf("%w: unknown decoder format %q", types.ErrConfiguration, cfg.Format)
	}

	d := &Decoder{format: format, base64: cfg.Base64}
	if cfg.AvroSchema != "" {
		codec, err := goavro.NewCodec(cfg.AvroSchema)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid avro schema: %v", types.ErrConfiguration, err)
		}
		d.codec = codec
		if d.schema, err = parseWriterSchema(cfg.AvroSchema); err != nil {
			return nil, fmt.Errorf("%w: invalid avro schema: %v", types.ErrConfiguration, err)
		}
	}
	return d, nil
}

// Default returns a Decoder using FormatAuto.
func Default() *Decoder {
	return &Decoder{format: FormatAuto}
}

// Decode turns payload into a record. Any malformed payload yields an error
// wrapping types.ErrDecode.
func (d *Decoder) Decode(payload []byte) (types.Record, error) {
	if d.base64 {
		raw, err := base64.StdEncoding.DecodeString(string(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: base64: %v", types.ErrDecode, err)
		}
		payload = raw
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", types.ErrDecode)
	}

	switch d.format {
	case FormatJSON:
		return decodeJSON(payload)
	case FormatAvro:
		return d.decodeAvro(payload)
	default:
		if bytes.HasPrefix(payload, avroMagic) || d.codec != nil {
			return d.decodeAvro(payload)
		}
		return decodeJSON(payload)
	}
}

func decodeJSON(payload []byte) (types.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var rec map[string]interface{}
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: json: %v", types.ErrDecode, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: json: trailing data after object", types.ErrDecode)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: json payload is not an object", types.ErrDecode)
	}
	if err := normalizeNumbers(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// normalizeNumbers replaces json.Number values in place: integers become
// int64 so 64-bit alert IDs survive, everything else float64.
func normalizeNumbers(v interface{}) error {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, inner := range t {
			n, err := normalizeValue(inner)
			if err != nil {
				return err
			}
			t[k] = n
		}
	case []interface{}:
		for i, inner := range t {
			n, err := normalizeValue(inner)
			if err != nil {
				return err
			}
			t[i] = n
		}
	}
	return nil
}

func normalizeValue(v interface{}) (interface{}, error) {
	num, ok := v.(json.Number)
	if !ok {
		return v, normalizeNumbers(v)
	}
	if i, err := num.Int64(); err == nil {
		return i, nil
	}
	f, err := num.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: json number %s: %v", types.ErrDecode, num, err)
	}
	return f, nil
}

func (d *Decoder) decodeAvro(payload []byte) (types.Record, error) {
	var native interface{}
	var schema *writerSchema
	if bytes.HasPrefix(payload, avroMagic) {
		ocf, err := goavro.NewOCFReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: avro container: %v", types.ErrDecode, err)
		}
		if !ocf.Scan() {
			if err := ocf.Err(); err != nil {
				return nil, fmt.Errorf("%w: avro container: %v", types.ErrDecode, err)
			}
			return nil, fmt.Errorf("%w: avro container holds no records", types.ErrDecode)
		}
		native, err = ocf.Read()
		if err != nil {
			return nil, fmt.Errorf("%w: avro record: %v", types.ErrDecode, err)
		}
		if ocf.Scan() {
			return nil, fmt.Errorf("%w: avro container holds more than one record", types.ErrDecode)
		}
		schema, err = parseWriterSchema(ocf.Codec().Schema())
		if err != nil {
			return nil, fmt.Errorf("%w: avro container schema: %v", types.ErrDecode, err)
		}
	} else {
		if d.codec == nil {
			return nil, fmt.Errorf("%w: schemaless avro payload but no schema configured", types.ErrDecode)
		}
		var err error
		native, _, err = d.codec.NativeFromBinary(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: avro binary: %v", types.ErrDecode, err)
		}
		schema = d.schema
	}

	rec, ok := schema.unwrap(native).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: avro datum is %T, not a record", types.ErrDecode, native)
	}
	return rec, nil
}
