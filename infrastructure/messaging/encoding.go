package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/isectech/hospital-threat-engine/domain/entity"
)

// Content types written to the content_type header
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
)

// Encoder serializes classification results for the wire
type Encoder interface {
	Encode(result *entity.ClassificationResult) ([]byte, error)
	ContentType() string
}

// NewEncoder returns the encoder for name, "json" or "msgpack"
func NewEncoder(name string) (Encoder, error) {
	switch name {
	case "", "json":
		return jsonEncoder{}, nil
	case "msgpack":
		return msgpackEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
}

type jsonEncoder struct{}

func (jsonEncoder) Encode(result *entity.ClassificationResult) ([]byte, error) {
	return json.Marshal(result)
}

func (jsonEncoder) ContentType() string { return ContentTypeJSON }

// msgpackEncoder reuses the json field names so both encodings share one schema
type msgpackEncoder struct{}

func (msgpackEncoder) Encode(result *entity.ClassificationResult) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackEncoder) ContentType() string { return ContentTypeMsgpack }

// DecodeResult reverses an Encoder given the content type header
func DecodeResult(contentType string, data []byte) (*entity.ClassificationResult, error) {
	var result entity.ClassificationResult
	switch contentType {
	case ContentTypeMsgpack:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		if err := dec.Decode(&result); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, err
		}
	}
	return &result, nil
}
