package protocol

import "encoding/json"

// Envelope is the single frame format exchanged over the wire.
// Client requests may carry a correlation id (CID); the server echoes it on
// exactly one ack or error reply. Server-initiated events carry no CID.
type Envelope struct {
	Verb    string          `json:"verb"`
	CID     string          `json:"cid,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds a server-initiated envelope. Marshal failures are
// programming errors on our own payload types, so they panic.
func NewEvent(verb string, payload any) *Envelope {
	return &Envelope{Verb: verb, Payload: mustMarshal(payload)}
}

// NewReply builds the single correlated response to a client request.
func NewReply(verb, cid string, payload any) *Envelope {
	return &Envelope{Verb: verb, CID: cid, Payload: mustMarshal(payload)}
}

func mustMarshal(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic("protocol: unmarshalable payload: " + err.Error())
	}
	return raw
}
