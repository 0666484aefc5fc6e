// Package events defines event types and structures for pipeline run notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic all pipeline events are published on.
const Topic = "quartic.pipeline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"

	// Step lifecycle events.
	StepStartedEvent   EventType = "step.started"
	StepCompletedEvent EventType = "step.completed"
	StepSkippedEvent   EventType = "step.skipped"
	StepFailedEvent    EventType = "step.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Namespace string         `json:"namespace"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, runID, namespace string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Namespace: namespace,
		Metadata:  make(map[string]any),
	}
}

type RunStarted struct {
	BaseEvent

	Steps int `json:"steps"`
}

func (r RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	Executed int           `json:"executed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

func (r RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (r RunFailed) GetType() EventType {
	return RunFailedEvent
}

// StepRef identifies the step an event is about.
type StepRef struct {
	StepID   string `json:"step_id"`
	StepName string `json:"step_name"`
	Output   string `json:"output"`
}

type StepStarted struct {
	BaseEvent
	StepRef
}

func (s StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepCompleted struct {
	BaseEvent
	StepRef

	Duration time.Duration `json:"duration"`
}

func (s StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

// StepSkipped is published when a step's output is already in the resume checkpoint.
type StepSkipped struct {
	BaseEvent
	StepRef
}

func (s StepSkipped) GetType() EventType {
	return StepSkippedEvent
}

type StepFailed struct {
	BaseEvent
	StepRef

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (s StepFailed) GetType() EventType {
	return StepFailedEvent
}

// Types lists every event type in the order a run publishes them.
func Types() []EventType {
	return []EventType{
		RunStartedEvent,
		StepStartedEvent,
		StepSkippedEvent,
		StepCompletedEvent,
		StepFailedEvent,
		RunCompletedEvent,
		RunFailedEvent,
	}
}

// New returns an empty event value for eventType, or nil when the type is unknown.
func New(eventType EventType) any {
	switch eventType {
	case RunStartedEvent:
		return &RunStarted{}
	case RunCompletedEvent:
		return &RunCompleted{}
	case RunFailedEvent:
		return &RunFailed{}
	case StepStartedEvent:
		return &StepStarted{}
	case StepCompletedEvent:
		return &StepCompleted{}
	case StepSkippedEvent:
		return &StepSkipped{}
	case StepFailedEvent:
		return &StepFailed{}
	default:
		return nil
	}
}
