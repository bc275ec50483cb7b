package domain

// RecordKind names the metric a new personal best was set on.
type RecordKind string

const (
	RecordSingle RecordKind = "new_pb_single"
	RecordAo5    RecordKind = "new_pb_ao5"
	RecordAo12   RecordKind = "new_pb_ao12"
)

// RecordEvent is emitted once per improved metric after reconciliation.
type RecordEvent struct {
	Kind           RecordKind `json:"kind"`
	OwnerID        string     `json:"owner_id"`
	ValueMs        int64      `json:"value_ms"`
	FormattedValue string     `json:"formatted_value"`
}
