package snapshot

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/shared/common"
)

// MaxDocumentBytes bounds a decoded snapshot document
const MaxDocumentBytes = 64 << 20

const schemaResource = "model_snapshot.json"

//go:embed model_snapshot.schema.json
var schemaDocument []byte

// Codec encodes snapshots and decodes them with full validation
type Codec struct {
	schema *jsonschema.Schema
}

// NewCodec compiles the embedded snapshot schema
func NewCodec() (*Codec, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource(schemaResource, bytes.NewReader(schemaDocument)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Codec{schema: schema}, nil
}

// EncodeJSON renders the snapshot document
func (c *Codec) EncodeJSON(s entity.ModelSnapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, common.WrapError(err, common.ErrCodeInternal, "failed to encode snapshot")
	}
	return data, nil
}

// DecodeJSON parses a snapshot document. Any schema or semantic violation is
// reported as a CORRUPT_SNAPSHOT error.
func (c *Codec) DecodeJSON(data []byte) (entity.ModelSnapshot, error) {
	var s entity.ModelSnapshot

	if len(data) > MaxDocumentBytes {
		return s, common.ErrCorruptSnapshot(fmt.Errorf("document exceeds %d bytes", MaxDocumentBytes))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return s, common.ErrCorruptSnapshot(fmt.Errorf("invalid JSON: %w", err))
	}
	if err := c.schema.Validate(doc); err != nil {
		return s, common.ErrCorruptSnapshot(err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return entity.ModelSnapshot{}, common.ErrCorruptSnapshot(err)
	}
	if err := Validate(s); err != nil {
		return entity.ModelSnapshot{}, common.ErrCorruptSnapshot(err)
	}
	return s, nil
}

// EncodeCompact renders the snapshot as an LZ4 frame around the JSON document
func (c *Codec) EncodeCompact(s entity.ModelSnapshot) ([]byte, error) {
	data, err := c.EncodeJSON(s)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, common.WrapError(err, common.ErrCodeInternal, "failed to write LZ4 compressed snapshot")
	}
	if err := writer.Close(); err != nil {
		return nil, common.WrapError(err, common.ErrCodeInternal, "failed to close LZ4 writer")
	}
	return buf.Bytes(), nil
}

// DecodeCompact reverses EncodeCompact with the same validation as DecodeJSON
func (c *Codec) DecodeCompact(data []byte) (entity.ModelSnapshot, error) {
	reader := lz4.NewReader(bytes.NewReader(data))
	decompressed, err := io.ReadAll(io.LimitReader(reader, MaxDocumentBytes+1))
	if err != nil {
		return entity.ModelSnapshot{}, common.ErrCorruptSnapshot(fmt.Errorf("failed to read LZ4 frame: %w", err))
	}
	return c.DecodeJSON(decompressed)
}
