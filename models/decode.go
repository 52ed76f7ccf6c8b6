// ABOUTME: JSON decoding of backend records into typed entities
// ABOUTME: Maps an entity kind and raw payload to the matching Record implementation
package models

import (
	"encoding/json"
	"fmt"
)

// Decode unmarshals raw into the entity type for kind.
func Decode(kind Kind, raw json.RawMessage) (Record, error) {
	var (
		rec Record
		err error
	)

	switch kind {
	case KindLead:
		var v Lead
		err = json.Unmarshal(raw, &v)
		rec = v
	case KindDeal:
		var v Deal
		err = json.Unmarshal(raw, &v)
		rec = v
	case KindProject:
		var v Project
		err = json.Unmarshal(raw, &v)
		rec = v
	case KindTask:
		var v Task
		err = json.Unmarshal(raw, &v)
		rec = v
	case KindComment:
		var v Comment
		err = json.Unmarshal(raw, &v)
		rec = v
	case KindUser:
		var v User
		err = json.Unmarshal(raw, &v)
		rec = v
	default:
		return nil, fmt.Errorf("unknown entity kind: %q", kind)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	return rec, nil
}

// DecodeList decodes every element of a list response.
func DecodeList(kind Kind, raws []json.RawMessage) ([]Record, error) {
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := Decode(kind, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
