package types

// Event is a structured record of a ledger state change. Engines build
// events through typed constructors and hand them to the node's recorder;
// attribute values are strings so records serialize the same way everywhere.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
