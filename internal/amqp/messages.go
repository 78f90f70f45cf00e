package amqp

import (
	"encoding/json"
	"time"
)

// RoutingKeyRefreshed is used for dataset refreshed events.
const RoutingKeyRefreshed = "dataset.refreshed"

// RefreshRequestMessage asks a worker to refetch the dataset and replace the cache
type RefreshRequestMessage struct {
	Reason      string    `json:"reason"`
	RequestID   string    `json:"request_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewRefreshRequestMessage creates a refresh request stamped now
func NewRefreshRequestMessage(reason, requestID string) *RefreshRequestMessage {
	return &RefreshRequestMessage{
		Reason:      reason,
		RequestID:   requestID,
		RequestedAt: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RefreshRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshRequestMessageFromJSON creates a message from JSON bytes
func RefreshRequestMessageFromJSON(data []byte) (*RefreshRequestMessage, error) {
	var msg RefreshRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DatasetRefreshedMessage announces a successful network fetch
type DatasetRefreshedMessage struct {
	Records     int       `json:"records"`
	Source      string    `json:"source"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// NewDatasetRefreshedMessage creates an event stamped now
func NewDatasetRefreshedMessage(records int, source string) *DatasetRefreshedMessage {
	return &DatasetRefreshedMessage{
		Records:     records,
		Source:      source,
		RefreshedAt: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *DatasetRefreshedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DatasetRefreshedMessageFromJSON creates a message from JSON bytes
func DatasetRefreshedMessageFromJSON(data []byte) (*DatasetRefreshedMessage, error) {
	var msg DatasetRefreshedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
