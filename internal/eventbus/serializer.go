// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package eventbus

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Marshal converts an Event to JSON bytes.
func Marshal(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("eventbus: marshal %s event: %w", event.Topic(), err)
	}
	return data, nil
}

// unmarshalByTopic decodes data into the concrete event type registered for
// topic, returning it as the Event interface.
func unmarshalByTopic(topic string, data []byte) (Event, error) {
	switch topic {
	case TopicComputeMetaInfo:
		var ev ComputeMetaInfo
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("eventbus: unmarshal %s: %w", topic, err)
		}
		return ev, nil
	case TopicMetaInfoRequested:
		var ev MetaInfoRequested
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("eventbus: unmarshal %s: %w", topic, err)
		}
		return ev, nil
	case TopicMetaInfoFinished:
		var ev MetaInfoFinished
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("eventbus: unmarshal %s: %w", topic, err)
		}
		return ev, nil
	case TopicStartArchivingPV:
		var ev StartArchivingPV
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("eventbus: unmarshal %s: %w", topic, err)
		}
		return ev, nil
	case TopicStartedArchivingPV:
		var ev StartedArchivingPV
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("eventbus: unmarshal %s: %w", topic, err)
		}
		return ev, nil
	default:
		return nil, &ErrUnknownEventType{Topic: topic}
	}
}
