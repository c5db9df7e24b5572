package printer

import (
	"github.com/rs/zerolog/log"
	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/driver"
)

// StartScan clears the scan session and starts discovery. Results from any
// earlier scan are ignored from here on.
func (m *Manager) StartScan() error {
	var err error
	if derr := m.do(func() { err = m.startScan() }); derr != nil {
		return derr
	}
	return err
}

func (m *Manager) startScan() error {
	if m.scanning {
		m.stopScan()
	}

	m.session.Clear()
	m.scanGen++
	gen := m.scanGen

	found := func(d driver.Discovery) {
		m.post(func() { m.handleDiscovery(gen, d) })
	}

	if err := m.drv.StartDiscovery(found); err != nil {
		log.Error().Err(err).Msg("failed to start discovery")
		return fromDriver(err, ErrHardwareUnavailable)
	}

	m.scanning = true
	log.Info().Msg("🔍 scan started")
	return nil
}

// StopScan stops discovery. It is a no-op when no scan is running.
func (m *Manager) StopScan() error {
	return m.do(m.stopScan)
}

func (m *Manager) stopScan() {
	if !m.scanning {
		return
	}
	m.scanning = false
	m.scanGen++

	if err := m.drv.StopDiscovery(); err != nil {
		log.Warn().Err(err).Msg("failed to stop discovery")
	}
	log.Info().Int("devices", m.session.Len()).Msg("scan stopped")
}

// Scanning reports whether discovery is running
func (m *Manager) Scanning() bool {
	var scanning bool
	m.do(func() { scanning = m.scanning })
	return scanning
}

// Devices returns the scan session in first-seen order
func (m *Manager) Devices() []device.Device {
	var devs []device.Device
	m.do(func() { devs = m.session.All() })
	return devs
}

func (m *Manager) handleDiscovery(gen uint64, d driver.Discovery) {
	if !m.scanning || gen != m.scanGen {
		return
	}

	dev := device.Device{ID: d.ID, Name: d.Name, SignalStrength: d.RSSI}
	if !m.session.Add(dev) {
		return
	}

	log.Debug().Str("device", dev.ID).Str("name", dev.Name).Msg("device found")
	m.emitDevice(dev)
}
