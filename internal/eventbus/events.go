// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package eventbus

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current event schema version. Consumers should
// handle older versions for backward compatibility.
const SchemaVersion = 1

// Topic names for the archiving control-plane events.
const (
	TopicComputeMetaInfo    = "archiver.compute-meta-info"
	TopicMetaInfoRequested  = "archiver.meta-info-requested"
	TopicMetaInfoFinished   = "archiver.meta-info-finished"
	TopicStartArchivingPV   = "archiver.start-archiving-pv"
	TopicStartedArchivingPV = "archiver.started-archiving-pv"
)

// DestinationAll addresses an event to every appliance on the bus, the
// default for an event with no narrower routing.
const DestinationAll = "ALL"

// envelope is the common header carried by every event type: identity,
// schema versioning, and routing. A subscriber processes an event only
// when Destination is DestinationAll or equals its own identity; Source
// names the appliance that published it.
type envelope struct {
	SchemaVersion int       `json:"schema_version"`
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	Destination   string    `json:"destination"`
	Source        string    `json:"source"`
}

func newEnvelope() envelope {
	return envelope{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
		Timestamp:     time.Now().UTC(),
		Destination:   DestinationAll,
	}
}

// ComputeMetaInfo requests that a PV's type info be (re-)computed, e.g.
// when a client first asks to archive a PV that has no existing
// PVTypeInfo.
type ComputeMetaInfo struct {
	envelope
	PVName string `json:"pv_name"`
}

// NewComputeMetaInfo constructs a ComputeMetaInfo event for pvName.
func NewComputeMetaInfo(pvName string) ComputeMetaInfo {
	return ComputeMetaInfo{envelope: newEnvelope(), PVName: pvName}
}

// Topic implements Event.
func (e ComputeMetaInfo) Topic() string { return TopicComputeMetaInfo }

// MetaInfoRequested signals that a request for a PV's metadata (its
// DBR type, units, precision) has been issued to the protocol layer.
type MetaInfoRequested struct {
	envelope
	PVName string `json:"pv_name"`
}

// NewMetaInfoRequested constructs a MetaInfoRequested event for pvName.
func NewMetaInfoRequested(pvName string) MetaInfoRequested {
	return MetaInfoRequested{envelope: newEnvelope(), PVName: pvName}
}

// Topic implements Event.
func (e MetaInfoRequested) Topic() string { return TopicMetaInfoRequested }

// MetaInfoFinished signals that metadata for a PV has been resolved
// (or that resolution failed, in which case Err is non-empty).
type MetaInfoFinished struct {
	envelope
	PVName  string `json:"pv_name"`
	DBRType string `json:"dbr_type,omitempty"`
	Err     string `json:"err,omitempty"`
}

// NewMetaInfoFinished constructs a MetaInfoFinished event.
func NewMetaInfoFinished(pvName, dbrType string, err error) MetaInfoFinished {
	ev := MetaInfoFinished{envelope: newEnvelope(), PVName: pvName, DBRType: dbrType}
	if err != nil {
		ev.Err = err.Error()
	}
	return ev
}

// Topic implements Event.
func (e MetaInfoFinished) Topic() string { return TopicMetaInfoFinished }

// Succeeded reports whether metadata resolution completed without error.
func (e MetaInfoFinished) Succeeded() bool { return e.Err == "" }

// StartArchivingPV requests that the engine begin archiving a PV, once
// its type info is known.
type StartArchivingPV struct {
	envelope
	PVName      string   `json:"pv_name"`
	DBRType     string   `json:"dbr_type"`
	StorageURLs []string `json:"storage_urls"`
}

// NewStartArchivingPV constructs a StartArchivingPV event.
func NewStartArchivingPV(pvName, dbrType string, storageURLs []string) StartArchivingPV {
	return StartArchivingPV{
		envelope:    newEnvelope(),
		PVName:      pvName,
		DBRType:     dbrType,
		StorageURLs: storageURLs,
	}
}

// Topic implements Event.
func (e StartArchivingPV) Topic() string { return TopicStartArchivingPV }

// StartedArchivingPV confirms a PV has been registered and assigned a
// command thread.
type StartedArchivingPV struct {
	envelope
	PVName   string `json:"pv_name"`
	ThreadID int    `json:"thread_id"`
}

// NewStartedArchivingPV constructs a StartedArchivingPV event.
func NewStartedArchivingPV(pvName string, threadID int) StartedArchivingPV {
	return StartedArchivingPV{envelope: newEnvelope(), PVName: pvName, ThreadID: threadID}
}

// Topic implements Event.
func (e StartedArchivingPV) Topic() string { return TopicStartedArchivingPV }

// Event is any of the archiving control-plane event types; each knows its
// own topic so the dispatcher never has to hardcode a type-to-topic
// mapping at the call site.
type Event interface {
	Topic() string
}

var (
	_ Event = ComputeMetaInfo{}
	_ Event = MetaInfoRequested{}
	_ Event = MetaInfoFinished{}
	_ Event = StartArchivingPV{}
	_ Event = StartedArchivingPV{}
)

// ErrUnknownEventType is returned by unmarshalByTopic for a topic it does
// not recognize.
type ErrUnknownEventType struct {
	Topic string
}

func (e *ErrUnknownEventType) Error() string {
	return fmt.Sprintf("eventbus: unknown event type for topic %q", e.Topic)
}
