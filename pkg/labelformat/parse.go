package labelformat

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Parse parses a print request from a byte slice and validates it
func Parse(data []byte) (*Job, error) {
	job, err := Decode(data)
	if err != nil {
		return nil, err
	}

	if err := Validate(job); err != nil {
		return nil, err
	}

	return job, nil
}

// Decode parses a print request without validating it
func Decode(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}

	// Format names are matched case-insensitively on input
	for i := range job.Pages {
		for j := range job.Pages[i].Items {
			item := &job.Pages[i].Items[j]
			item.Format = strings.ToUpper(strings.TrimSpace(item.Format))
		}
	}

	return &job, nil
}

// ParseFile parses a print request from disk
func ParseFile(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	return Parse(data)
}

// ToJSON converts a Job to JSON bytes
func (j *Job) ToJSON() ([]byte, error) {
	return json.MarshalIndent(j, "", "  ")
}
