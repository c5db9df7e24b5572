// Package device holds discovered printers and the scan session they belong to.
package device

// Device is a printer observed during discovery
type Device struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SignalStrength *int   `json:"signalStrength,omitempty"`
}

// Registry is the scan session: devices keyed by id in first-seen order.
// It is not safe for concurrent use; the printer manager owns it.
type Registry struct {
	devices map[string]Device
	order   []string
}

// NewRegistry creates an empty scan session
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]Device),
	}
}

// Add inserts dev and reports whether it is new to the session.
// Devices with an empty name or an id already present are ignored.
func (r *Registry) Add(dev Device) bool {
	if dev.Name == "" || dev.ID == "" {
		return false
	}
	if _, exists := r.devices[dev.ID]; exists {
		return false
	}

	r.devices[dev.ID] = dev
	r.order = append(r.order, dev.ID)
	return true
}

// Get returns the device with the given id
func (r *Registry) Get(id string) (Device, bool) {
	dev, ok := r.devices[id]
	return dev, ok
}

// All returns the session's devices in first-seen order
func (r *Registry) All() []Device {
	out := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id])
	}
	return out
}

// Len returns the number of devices in the session
func (r *Registry) Len() int {
	return len(r.order)
}

// Clear starts a new session
func (r *Registry) Clear() {
	r.devices = make(map[string]Device)
	r.order = nil
}
