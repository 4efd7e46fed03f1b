// Package logger records relayed hub frames as JSON lines.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RecordingVersion is written into every recording header.
const RecordingVersion = 1

// Header is the first line of a recording.
type Header struct {
	Version int   `json:"version"`
	Started int64 `json:"started"`
}

// Event is a single recorded frame.
// Format: [time_offset, event_type, frame]
type Event struct {
	TimeOffset float64
	EventType  string
	Frame      json.RawMessage
}

// MarshalJSON encodes the event as a three element array.
func (e Event) MarshalJSON() ([]byte, error) {
	frame := e.Frame
	if len(frame) == 0 {
		frame = json.RawMessage("null")
	}
	return json.Marshal([]interface{}{e.TimeOffset, e.EventType, frame})
}

// UnmarshalJSON decodes the three element array form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event format: expected 3 elements, got %d", len(arr))
	}
	if err := json.Unmarshal(arr[0], &e.TimeOffset); err != nil {
		return fmt.Errorf("invalid time offset: %w", err)
	}
	if err := json.Unmarshal(arr[1], &e.EventType); err != nil {
		return fmt.Errorf("invalid event type: %w", err)
	}
	e.Frame = arr[2]
	return nil
}

// Recorder appends relayed frames to a JSON-lines file.
type Recorder struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	startTime time.Time
	mu        sync.Mutex
}

// NewRecorder creates the file at filePath (and its directory) and writes the header.
func NewRecorder(filePath string) (*Recorder, error) {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create recording directory: %w", err)
		}
	}
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}

	r := &Recorder{
		writer:    file,
		file:      file,
		startTime: time.Now(),
	}
	if err := r.writeHeader(); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// NewRecorderWithWriter creates a Recorder that writes to w.
func NewRecorderWithWriter(w io.Writer) (*Recorder, error) {
	r := &Recorder{
		writer:    w,
		startTime: time.Now(),
	}
	if err := r.writeHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) writeHeader() error {
	data, err := json.Marshal(Header{Version: RecordingVersion, Started: r.startTime.Unix()})
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// Record writes frame, an encoded message, under eventType.
func (r *Recorder) Record(eventType string, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event := Event{
		TimeOffset: time.Since(r.startTime).Seconds(),
		EventType:  eventType,
		Frame:      json.RawMessage(frame),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close closes the recording file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// StartTime returns the start time of the recording.
func (r *Recorder) StartTime() time.Time {
	return r.startTime
}
