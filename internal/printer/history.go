package printer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/job"
)

// Job statuses recorded in the history
const (
	JobPrinting  = "printing"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

const maxHistory = 200

// HistoryEntry records one print call
type HistoryEntry struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"device_id"`
	DeviceName  string     `json:"device_name,omitempty"`
	Mode        string     `json:"mode,omitempty"`
	Labels      int        `json:"labels,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// History keeps recent print calls. Failed prints are recorded, never retried.
type History struct {
	entries []*HistoryEntry
	mu      sync.Mutex
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{entries: make([]*HistoryEntry, 0)}
}

// Start records a print to dev and returns a copy of the new entry
func (h *History) Start(dev device.Device) HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := &HistoryEntry{
		ID:         uuid.New().String(),
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
		Status:     JobPrinting,
		CreatedAt:  time.Now(),
	}
	h.entries = append(h.entries, entry)

	if len(h.entries) > maxHistory {
		h.entries = h.entries[len(h.entries)-maxHistory:]
	}
	return *entry
}

// Describe attaches the built job's shape to an entry
func (h *History) Describe(id string, j *job.PrintJob) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if entry := h.find(id); entry != nil {
		entry.Mode = j.Mode.String()
		entry.Labels = j.Labels()
	}
}

// Finish marks an entry completed, or failed when err is set
func (h *History) Finish(id string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := h.find(id)
	if entry == nil {
		return
	}

	now := time.Now()
	entry.CompletedAt = &now
	if err != nil {
		entry.Status = JobFailed
		entry.Error = err.Error()
	} else {
		entry.Status = JobCompleted
	}
}

func (h *History) find(id string) *HistoryEntry {
	for _, entry := range h.entries {
		if entry.ID == id {
			return entry
		}
	}
	return nil
}

// Get returns a copy of the entry with the given id
func (h *History) Get(id string) *HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if entry := h.find(id); entry != nil {
		entryCopy := *entry
		return &entryCopy
	}
	return nil
}

// GetAll returns copies of all entries, oldest first
func (h *History) GetAll() []*HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := make([]*HistoryEntry, len(h.entries))
	for i, entry := range h.entries {
		entryCopy := *entry
		entries[i] = &entryCopy
	}
	return entries
}

// ClearCompleted removes completed entries
func (h *History) ClearCompleted() {
	h.mu.Lock()
	defer h.mu.Unlock()

	filtered := make([]*HistoryEntry, 0)
	for _, entry := range h.entries {
		if entry.Status != JobCompleted {
			filtered = append(filtered, entry)
		}
	}
	h.entries = filtered
}
