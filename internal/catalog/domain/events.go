package domain

import (
	"encoding/json"
	"fmt"
)

// Event types written to the journal.
const (
	EventProductCreated            = "product.created"
	EventProductUpdated            = "product.updated"
	EventProductCollectionAssigned = "product.collection_assigned"
	EventProductArchived           = "product.archived"
	EventCollectionCreated         = "collection.created"
	EventCollectionUpdated         = "collection.updated"
	EventCollectionArchived        = "collection.archived"
)

// Payload is the typed body of a journal event. Payloads stay typed inside
// the process; they are serialized only at the storage boundary.
type Payload interface {
	isPayload()
}

type ProductCreated struct {
	New ProductState `json:"new"`
}

type ProductUpdated struct {
	Prior ProductState `json:"prior"`
	New   ProductState `json:"new"`
}

type ProductCollectionAssigned struct {
	Prior ProductState `json:"prior"`
	New   ProductState `json:"new"`
}

type ProductArchived struct {
	Prior ProductState `json:"prior"`
	New   ProductState `json:"new"`
}

type CollectionCreated struct {
	New CollectionState `json:"new"`
}

type CollectionUpdated struct {
	Prior CollectionState `json:"prior"`
	New   CollectionState `json:"new"`
}

type CollectionArchived struct {
	Prior CollectionState `json:"prior"`
	New   CollectionState `json:"new"`
}

func (*ProductCreated) isPayload()            {}
func (*ProductUpdated) isPayload()            {}
func (*ProductCollectionAssigned) isPayload() {}
func (*ProductArchived) isPayload()           {}
func (*CollectionCreated) isPayload()         {}
func (*CollectionUpdated) isPayload()         {}
func (*CollectionArchived) isPayload()        {}

// EncodeEvent serializes a payload for the journal.
func EncodeEvent(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	return data, nil
}

// DecodeEvent deserializes a journal payload back into its typed form based
// on the event type.
func DecodeEvent(eventType string, data []byte) (Payload, error) {
	var p Payload
	switch eventType {
	case EventProductCreated:
		p = &ProductCreated{}
	case EventProductUpdated:
		p = &ProductUpdated{}
	case EventProductCollectionAssigned:
		p = &ProductCollectionAssigned{}
	case EventProductArchived:
		p = &ProductArchived{}
	case EventCollectionCreated:
		p = &CollectionCreated{}
	case EventCollectionUpdated:
		p = &CollectionUpdated{}
	case EventCollectionArchived:
		p = &CollectionArchived{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return p, nil
}
