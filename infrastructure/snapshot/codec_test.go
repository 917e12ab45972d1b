package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/shared/common"
)

func validSnapshot() entity.ModelSnapshot {
	model := entity.NewModel(3, 4, 2)
	model.Trees = []entity.DecisionRule{
		entity.FixedPolicyRule(),
		*entity.LeafRule(entity.ThreatLabelDDoS),
		*entity.ThresholdRule(entity.FeaturePacketsPerSecond, 1000,
			entity.LeafRule(entity.ThreatLabelBenign),
			entity.LeafRule(entity.ThreatLabelDDoS)),
	}

	return entity.ModelSnapshot{
		SchemaVersion: entity.CurrentSnapshotVersion,
		Model:         model,
		TrainingData: []entity.TrainingSample{
			{
				Features: entity.FeatureVector{
					PacketSize: 64, BytesTransferred: 100, PacketsPerSecond: 10000,
					UniquePorts: 1, PayloadEntropy: 2.1, SourceReputation: 0.1,
					DestinationReputation: 0.9, GeographicDistance: 12000, TimeOfDay: 15, DayOfWeek: 3,
				},
				Label:      entity.ThreatLabelDDoS,
				Confidence: 0.96,
			},
		},
		FeatureWeights: entity.DefaultFeatureWeights(),
		IsModelTrained: true,
		ExportedAt:     time.Date(2024, 5, 1, 12, 30, 15, 123456789, time.UTC),
	}
}

func newCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec()
	require.NoError(t, err)
	return c
}

// mutateDocument re-encodes a valid snapshot after fn edits its generic form
func mutateDocument(t *testing.T, c *Codec, fn func(doc map[string]interface{})) []byte {
	t.Helper()
	data, err := c.EncodeJSON(validSnapshot())
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	fn(doc)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	return out
}

func TestCodec_JSONRoundTrip(t *testing.T) {
	c := newCodec(t)
	want := validSnapshot()

	data, err := c.EncodeJSON(want)
	require.NoError(t, err)

	got, err := c.DecodeJSON(data)
	require.NoError(t, err)

	assert.True(t, want.ExportedAt.Equal(got.ExportedAt))
	got.ExportedAt = want.ExportedAt
	assert.Equal(t, want, got)
}

func TestCodec_DocumentFieldNames(t *testing.T) {
	c := newCodec(t)

	data, err := c.EncodeJSON(validSnapshot())
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"schemaVersion", "model", "trainingData", "featureWeights", "isModelTrained", "exportedAt"} {
		assert.Contains(t, doc, key)
	}
	assert.Len(t, doc, 6)
}

func TestCodec_CompactRoundTrip(t *testing.T) {
	c := newCodec(t)
	want := validSnapshot()

	data, err := c.EncodeCompact(want)
	require.NoError(t, err)

	got, err := c.DecodeCompact(data)
	require.NoError(t, err)
	assert.Equal(t, want.Model, got.Model)
	assert.Equal(t, want.TrainingData, got.TrainingData)
	assert.Equal(t, want.FeatureWeights, got.FeatureWeights)
}

func TestCodec_DecodeCompactGarbage(t *testing.T) {
	c := newCodec(t)

	_, err := c.DecodeCompact([]byte("definitely not lz4"))

	assert.True(t, common.HasErrorCode(err, common.ErrCodeCorruptSnapshot))
}

func TestCodec_RejectsCorruptDocuments(t *testing.T) {
	c := newCodec(t)

	tests := []struct {
		name   string
		mutate func(doc map[string]interface{})
	}{
		{"missing model", func(doc map[string]interface{}) { delete(doc, "model") }},
		{"missing trainingData", func(doc map[string]interface{}) { delete(doc, "trainingData") }},
		{"missing featureWeights", func(doc map[string]interface{}) { delete(doc, "featureWeights") }},
		{"missing isModelTrained", func(doc map[string]interface{}) { delete(doc, "isModelTrained") }},
		{"missing exportedAt", func(doc map[string]interface{}) { delete(doc, "exportedAt") }},
		{"missing schemaVersion", func(doc map[string]interface{}) { delete(doc, "schemaVersion") }},
		{"future schema version", func(doc map[string]interface{}) { doc["schemaVersion"] = 2 }},
		{"unknown top-level field", func(doc map[string]interface{}) { doc["optimizer"] = "adam" }},
		{"trained flag is a string", func(doc map[string]interface{}) { doc["isModelTrained"] = "yes" }},
		{"exportedAt is not a timestamp", func(doc map[string]interface{}) { doc["exportedAt"] = "yesterday" }},
		{"unknown label", func(doc map[string]interface{}) {
			samples := doc["trainingData"].([]interface{})
			samples[0].(map[string]interface{})["label"] = "worm"
		}},
		{"confidence above one", func(doc map[string]interface{}) {
			samples := doc["trainingData"].([]interface{})
			samples[0].(map[string]interface{})["confidence"] = 1.2
		}},
		{"feature missing from sample", func(doc map[string]interface{}) {
			samples := doc["trainingData"].([]interface{})
			features := samples[0].(map[string]interface{})["features"].(map[string]interface{})
			delete(features, "payloadEntropy")
		}},
		{"weight out of range", func(doc map[string]interface{}) {
			doc["featureWeights"].(map[string]interface{})["packetSize"] = 3
		}},
		{"weight for unknown feature", func(doc map[string]interface{}) {
			doc["featureWeights"].(map[string]interface{})["colour"] = 0.1
		}},
		{"missing weight", func(doc map[string]interface{}) {
			delete(doc["featureWeights"].(map[string]interface{}), "hipaaRelevant")
		}},
		{"threshold rule without children", func(doc map[string]interface{}) {
			trees := doc["model"].(map[string]interface{})["trees"].([]interface{})
			rule := trees[2].(map[string]interface{})
			delete(rule, "left")
		}},
		{"threshold on unknown feature", func(doc map[string]interface{}) {
			trees := doc["model"].(map[string]interface{})["trees"].([]interface{})
			trees[2].(map[string]interface{})["feature"] = "colour"
		}},
		{"unknown rule kind", func(doc map[string]interface{}) {
			trees := doc["model"].(map[string]interface{})["trees"].([]interface{})
			trees[0].(map[string]interface{})["kind"] = "neural"
		}},
		{"zero tree count", func(doc map[string]interface{}) {
			doc["model"].(map[string]interface{})["treeCount"] = 0
		}},
		{"trained without trees", func(doc map[string]interface{}) {
			doc["model"].(map[string]interface{})["trees"] = []interface{}{}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := mutateDocument(t, c, tt.mutate)

			_, err := c.DecodeJSON(data)

			require.Error(t, err)
			assert.True(t, common.HasErrorCode(err, common.ErrCodeCorruptSnapshot), err.Error())
		})
	}
}

func TestCodec_RejectsNonJSON(t *testing.T) {
	c := newCodec(t)

	for _, data := range [][]byte{nil, []byte("{"), []byte("[]"), []byte(`"snapshot"`)} {
		_, err := c.DecodeJSON(data)
		assert.True(t, common.HasErrorCode(err, common.ErrCodeCorruptSnapshot), string(data))
	}
}

func TestValidate_RuleDepth(t *testing.T) {
	s := validSnapshot()
	s.Model.MaxDepth = 1
	s.Model.Trees = []entity.DecisionRule{
		*entity.ThresholdRule(entity.FeaturePacketSize, 1,
			entity.ThresholdRule(entity.FeaturePacketSize, 2,
				entity.LeafRule(entity.ThreatLabelBenign),
				entity.LeafRule(entity.ThreatLabelBenign)),
			entity.LeafRule(entity.ThreatLabelBenign)),
	}

	assert.Error(t, Validate(s))

	s.Model.MaxDepth = 2
	assert.NoError(t, Validate(s))
}
