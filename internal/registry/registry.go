// Package registry remembers printers across restarts, with operator aliases
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry stores known printers keyed by device id
type Registry struct {
	filePath string
	data     map[string]*Entry
	mu       sync.RWMutex
}

// Entry stores persistent information about a printer
type Entry struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Alias         string    `json:"alias,omitempty"` // operator-set name
	Transport     string    `json:"transport"`       // ble, rfcomm
	FirstSeen     time.Time `json:"first_seen"`
	LastConnected time.Time `json:"last_connected"`
}

// DisplayName returns the alias if set, otherwise the advertised name
func (e *Entry) DisplayName() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Name
}

// New creates a registry backed by filePath
func New(filePath string) (*Registry, error) {
	r := &Registry{
		filePath: filePath,
		data:     make(map[string]*Entry),
	}

	if err := r.load(); err != nil {
		// A missing file is created on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load registry: %w", err)
		}
	}

	return r, nil
}

// Path returns the backing file
func (r *Registry) Path() string {
	return r.filePath
}

// Remember records a successful connection to a printer
func (r *Registry) Remember(id, name, transport string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalizeID(id)
	now := time.Now()

	entry, exists := r.data[key]
	if !exists {
		entry = &Entry{ID: id, FirstSeen: now}
		r.data[key] = entry
	}
	if name != "" {
		entry.Name = name
	}
	entry.Transport = transport
	entry.LastConnected = now

	entryCopy := *entry
	if err := r.save(); err != nil {
		return &entryCopy, fmt.Errorf("failed to save registry: %w", err)
	}
	return &entryCopy, nil
}

// Get returns a copy of the entry for id, or nil
func (r *Registry) Get(id string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, exists := r.data[normalizeID(id)]; exists {
		entryCopy := *entry
		return &entryCopy
	}
	return nil
}

// SetAlias sets an operator name for a printer. An empty alias clears it.
func (r *Registry) SetAlias(id, alias string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.data[normalizeID(id)]
	if !exists {
		return false
	}
	entry.Alias = alias
	// Kept in memory if the save fails; the next successful save persists it
	_ = r.save()
	return true
}

// Remove forgets a printer
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalizeID(id)
	if _, exists := r.data[key]; !exists {
		return false
	}
	delete(r.data, key)
	_ = r.save()
	return true
}

// All returns copies of every entry, most recently connected first
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Entry, 0, len(r.data))
	for _, v := range r.data {
		entryCopy := *v
		result = append(result, &entryCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastConnected.After(result[j].LastConnected)
	})
	return result
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return err
	}

	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		r.data[normalizeID(e.ID)] = e
	}
	return nil
}

func (r *Registry) save() error {
	entries := make([]*Entry, 0, len(r.data))
	for _, e := range r.data {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(r.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(r.filePath, data, 0644)
}

// Bluetooth addresses compare case-insensitively
func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
