package entity

import (
	"time"
)

// RawEvent is one network telemetry record as supplied by a sensor or the
// dashboard. Optional fields are pointers so that an explicit zero can be
// told apart from an absent value.
type RawEvent struct {
	SourceIP         string    `json:"sourceIP" bson:"source_ip"`
	DestinationIP    string    `json:"destinationIP" bson:"destination_ip"`
	PacketSize       int       `json:"packetSize" bson:"packet_size"`
	Payload          string    `json:"payload" bson:"payload"`
	Timestamp        time.Time `json:"timestamp" bson:"timestamp"`
	BytesTransferred int64     `json:"bytesTransferred" bson:"bytes_transferred"`
	PacketsPerSecond float64   `json:"packetsPerSecond" bson:"packets_per_second"`

	// Optional
	Protocol              string   `json:"protocol,omitempty" bson:"protocol,omitempty"`
	ConnectionDuration    *float64 `json:"connectionDuration,omitempty" bson:"connection_duration,omitempty"`
	UniquePorts           *int     `json:"uniquePorts,omitempty" bson:"unique_ports,omitempty"`
	ProtocolDiversity     *float64 `json:"protocolDiversity,omitempty" bson:"protocol_diversity,omitempty"`
	SourceReputation      *float64 `json:"sourceReputation,omitempty" bson:"source_reputation,omitempty"`
	DestinationReputation *float64 `json:"destinationReputation,omitempty" bson:"destination_reputation,omitempty"`
	GeographicDistance    *float64 `json:"geographicDistance,omitempty" bson:"geographic_distance,omitempty"`
}

// Defaults applied by feature extraction when an optional field is absent
const (
	DefaultReputation         = 0.5
	DefaultUniquePorts        = 1
	DefaultConnectionDuration = 0.0
	DefaultProtocolDiversity  = 0.0
	DefaultGeographicDistance = 0.0
)

// BatchClassifyRequest carries several events for one classification call
type BatchClassifyRequest struct {
	Events []RawEvent `json:"events"`
}
