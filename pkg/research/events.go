package research

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventStepStart      EventType = "step_start"
	EventStepComplete   EventType = "step_complete"
	EventResearchPlan   EventType = "research_plan"
	EventProgress       EventType = "progress"
	EventStatusChange   EventType = "status_change"
	EventReportChunk    EventType = "report_chunk"
	EventReportComplete EventType = "report_complete"
	EventError          EventType = "error"
)

// EventData is implemented by exactly one payload struct per EventType.
type EventData interface {
	EventType() EventType
}

type StepStartData struct {
	Step        int        `json:"step"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

type StepCompleteData struct {
	Step        int        `json:"step"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Data        *StepData  `json:"data,omitempty"`
}

type ResearchPlanData struct {
	Plan       ResearchPlan `json:"plan"`
	TotalSteps int          `json:"totalSteps"`
}

type ProgressData struct {
	Progress int `json:"progress"`
}

type StatusChangeData struct {
	Status Phase `json:"status"`
}

type ReportChunkData struct {
	Chunk string `json:"chunk"`
}

type ReportCompleteData struct {
	FullReport string   `json:"fullReport"`
	Sources    []Source `json:"sources"`
}

type ErrorData struct {
	Message string `json:"message"`
	Step    int    `json:"step,omitempty"`
}

func (StepStartData) EventType() EventType      { return EventStepStart }
func (StepCompleteData) EventType() EventType   { return EventStepComplete }
func (ResearchPlanData) EventType() EventType   { return EventResearchPlan }
func (ProgressData) EventType() EventType       { return EventProgress }
func (StatusChangeData) EventType() EventType   { return EventStatusChange }
func (ReportChunkData) EventType() EventType    { return EventReportChunk }
func (ReportCompleteData) EventType() EventType { return EventReportComplete }
func (ErrorData) EventType() EventType          { return EventError }

// Frame is one event on the wire: {type, data, timestamp}.
// A frame of an unknown type decodes with a nil Data.
type Frame struct {
	Type      EventType `json:"type"`
	Data      EventData `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func NewFrame(data EventData, now time.Time) Frame {
	return Frame{Type: data.EventType(), Data: data, Timestamp: now}
}

type wireFrame struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func (f Frame) MarshalJSON() ([]byte, error) {
	data := []byte("{}")
	if f.Data != nil {
		b, err := json.Marshal(f.Data)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(wireFrame{Type: f.Type, Data: data, Timestamp: f.Timestamp.UTC()})
}

func (f *Frame) UnmarshalJSON(b []byte) error {
	var w wireFrame
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Type == "" {
		return fmt.Errorf("frame has no type")
	}
	f.Type = w.Type
	f.Timestamp = w.Timestamp
	f.Data = nil

	var (
		data EventData
		err  error
	)
	switch w.Type {
	case EventStepStart:
		data, err = decodeData[StepStartData](w.Data)
	case EventStepComplete:
		data, err = decodeData[StepCompleteData](w.Data)
	case EventResearchPlan:
		data, err = decodeData[ResearchPlanData](w.Data)
	case EventProgress:
		data, err = decodeData[ProgressData](w.Data)
	case EventStatusChange:
		data, err = decodeData[StatusChangeData](w.Data)
	case EventReportChunk:
		data, err = decodeData[ReportChunkData](w.Data)
	case EventReportComplete:
		data, err = decodeData[ReportCompleteData](w.Data)
	case EventError:
		data, err = decodeData[ErrorData](w.Data)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode %s data: %w", w.Type, err)
	}
	f.Data = data
	return nil
}

func decodeData[T EventData](raw json.RawMessage) (EventData, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
