package entity

import (
	"fmt"
	"math"
)

// FeatureVector is the fixed-shape feature set derived from a RawEvent
type FeatureVector struct {
	PacketSize            int     `json:"packetSize" bson:"packet_size" yaml:"packetSize"`
	ConnectionDuration    float64 `json:"connectionDuration" bson:"connection_duration" yaml:"connectionDuration"`
	BytesTransferred      int64   `json:"bytesTransferred" bson:"bytes_transferred" yaml:"bytesTransferred"`
	PacketsPerSecond      float64 `json:"packetsPerSecond" bson:"packets_per_second" yaml:"packetsPerSecond"`
	UniquePorts           int     `json:"uniquePorts" bson:"unique_ports" yaml:"uniquePorts"`
	ProtocolDiversity     float64 `json:"protocolDiversity" bson:"protocol_diversity" yaml:"protocolDiversity"`
	PayloadEntropy        float64 `json:"payloadEntropy" bson:"payload_entropy" yaml:"payloadEntropy"`
	SuspiciousStrings     int     `json:"suspiciousStrings" bson:"suspicious_strings" yaml:"suspiciousStrings"`
	TimeOfDay             int     `json:"timeOfDay" bson:"time_of_day" yaml:"timeOfDay"`
	DayOfWeek             int     `json:"dayOfWeek" bson:"day_of_week" yaml:"dayOfWeek"`
	SourceReputation      float64 `json:"sourceReputation" bson:"source_reputation" yaml:"sourceReputation"`
	DestinationReputation float64 `json:"destinationReputation" bson:"destination_reputation" yaml:"destinationReputation"`
	GeographicDistance    float64 `json:"geographicDistance" bson:"geographic_distance" yaml:"geographicDistance"`
	IsEncrypted           bool    `json:"isEncrypted" bson:"is_encrypted" yaml:"isEncrypted"`
	HasBase64             bool    `json:"hasBase64" bson:"has_base64" yaml:"hasBase64"`
	IsMedicalDevice       bool    `json:"isMedicalDevice" bson:"is_medical_device" yaml:"isMedicalDevice"`
	IsPatientData         bool    `json:"isPatientData" bson:"is_patient_data" yaml:"isPatientData"`
	HIPAARelevant         bool    `json:"hipaaRelevant" bson:"hipaa_relevant" yaml:"hipaaRelevant"`
}

// Feature names, identical to the JSON field names of FeatureVector
const (
	FeaturePacketSize            = "packetSize"
	FeatureConnectionDuration    = "connectionDuration"
	FeatureBytesTransferred      = "bytesTransferred"
	FeaturePacketsPerSecond      = "packetsPerSecond"
	FeatureUniquePorts           = "uniquePorts"
	FeatureProtocolDiversity     = "protocolDiversity"
	FeaturePayloadEntropy        = "payloadEntropy"
	FeatureSuspiciousStrings     = "suspiciousStrings"
	FeatureTimeOfDay             = "timeOfDay"
	FeatureDayOfWeek             = "dayOfWeek"
	FeatureSourceReputation      = "sourceReputation"
	FeatureDestinationReputation = "destinationReputation"
	FeatureGeographicDistance    = "geographicDistance"
	FeatureIsEncrypted           = "isEncrypted"
	FeatureHasBase64             = "hasBase64"
	FeatureIsMedicalDevice       = "isMedicalDevice"
	FeatureIsPatientData         = "isPatientData"
	FeatureHIPAARelevant         = "hipaaRelevant"
)

var featureNames = []string{
	FeaturePacketSize,
	FeatureConnectionDuration,
	FeatureBytesTransferred,
	FeaturePacketsPerSecond,
	FeatureUniquePorts,
	FeatureProtocolDiversity,
	FeaturePayloadEntropy,
	FeatureSuspiciousStrings,
	FeatureTimeOfDay,
	FeatureDayOfWeek,
	FeatureSourceReputation,
	FeatureDestinationReputation,
	FeatureGeographicDistance,
	FeatureIsEncrypted,
	FeatureHasBase64,
	FeatureIsMedicalDevice,
	FeatureIsPatientData,
	FeatureHIPAARelevant,
}

// FeatureNames returns the canonical ordered list of feature names
func FeatureNames() []string {
	names := make([]string, len(featureNames))
	copy(names, featureNames)
	return names
}

// IsFeatureName reports whether name is one of the FeatureVector fields
func IsFeatureName(name string) bool {
	for _, n := range featureNames {
		if n == name {
			return true
		}
	}
	return false
}

// Value returns the named feature as a float64, booleans as 0 or 1.
// ok is false for an unknown name.
func (f FeatureVector) Value(name string) (value float64, ok bool) {
	switch name {
	case FeaturePacketSize:
		return float64(f.PacketSize), true
	case FeatureConnectionDuration:
		return f.ConnectionDuration, true
	case FeatureBytesTransferred:
		return float64(f.BytesTransferred), true
	case FeaturePacketsPerSecond:
		return f.PacketsPerSecond, true
	case FeatureUniquePorts:
		return float64(f.UniquePorts), true
	case FeatureProtocolDiversity:
		return f.ProtocolDiversity, true
	case FeaturePayloadEntropy:
		return f.PayloadEntropy, true
	case FeatureSuspiciousStrings:
		return float64(f.SuspiciousStrings), true
	case FeatureTimeOfDay:
		return float64(f.TimeOfDay), true
	case FeatureDayOfWeek:
		return float64(f.DayOfWeek), true
	case FeatureSourceReputation:
		return f.SourceReputation, true
	case FeatureDestinationReputation:
		return f.DestinationReputation, true
	case FeatureGeographicDistance:
		return f.GeographicDistance, true
	case FeatureIsEncrypted:
		return boolValue(f.IsEncrypted), true
	case FeatureHasBase64:
		return boolValue(f.HasBase64), true
	case FeatureIsMedicalDevice:
		return boolValue(f.IsMedicalDevice), true
	case FeatureIsPatientData:
		return boolValue(f.IsPatientData), true
	case FeatureHIPAARelevant:
		return boolValue(f.HIPAARelevant), true
	default:
		return 0, false
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// MaxPayloadEntropy is the Shannon entropy of a uniform byte distribution
const MaxPayloadEntropy = 8.0

// Validate checks the ranges a persisted feature vector must satisfy. Values
// produced by the extractor always pass; hand-built training samples may not.
func (f FeatureVector) Validate() error {
	for _, name := range featureNames {
		v, _ := f.Value(name)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite, got %v", name, v)
		}
	}
	if f.PayloadEntropy < 0 || f.PayloadEntropy > MaxPayloadEntropy {
		return fmt.Errorf("payloadEntropy %v outside [0,%v]", f.PayloadEntropy, MaxPayloadEntropy)
	}
	if f.SuspiciousStrings < 0 {
		return fmt.Errorf("suspiciousStrings must not be negative, got %d", f.SuspiciousStrings)
	}
	if f.TimeOfDay < 0 || f.TimeOfDay > 23 {
		return fmt.Errorf("timeOfDay %d outside [0,23]", f.TimeOfDay)
	}
	if f.DayOfWeek < 0 || f.DayOfWeek > 6 {
		return fmt.Errorf("dayOfWeek %d outside [0,6]", f.DayOfWeek)
	}
	return nil
}
