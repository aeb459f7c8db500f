package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// AudioOutput is one published chapter audio variant, recorded on the job so
// status consumers can read the result without a catalog round trip.
type AudioOutput struct {
	BitrateKbps     int       `json:"bitrateKbps"`
	Path            string    `json:"path"`
	DurationSeconds int64     `json:"durationSeconds"`
	SizeBytes       int64     `json:"sizeBytes"`
	CreatedAt       time.Time `json:"createdAt"`
}

// SetAudioOutputs serializes the variant list into the job's outputs payload.
func (j *Job) SetAudioOutputs(outputs []AudioOutput) error {
	if len(outputs) == 0 {
		j.OutputsJSON = ""
		return nil
	}
	data, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("encode job outputs: %w", err)
	}
	j.OutputsJSON = string(data)
	return nil
}

// AudioOutputs decodes the job's outputs payload. A job without outputs
// returns an empty slice.
func (j *Job) AudioOutputs() ([]AudioOutput, error) {
	if j.OutputsJSON == "" {
		return nil, nil
	}
	var outputs []AudioOutput
	if err := json.Unmarshal([]byte(j.OutputsJSON), &outputs); err != nil {
		return nil, fmt.Errorf("decode job outputs: %w", err)
	}
	return outputs, nil
}
