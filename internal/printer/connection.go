package printer

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/driver"
)

// Connect starts connecting to a device from the scan session or to a raw
// address the driver can resolve. It returns once the attempt is under way;
// the outcome arrives as connection events. Connecting while an earlier
// attempt is pending abandons that attempt.
func (m *Manager) Connect(id string, bypassWhitelist bool) error {
	if id == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidArgument)
	}

	var err error
	if derr := m.do(func() { err = m.connect(id, bypassWhitelist) }); derr != nil {
		return derr
	}
	return err
}

func (m *Manager) connect(id string, bypass bool) error {
	switch m.state {
	case StateConnected:
		if m.target.ID == id {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, m.target.ID)
	case StateDisconnecting:
		return fmt.Errorf("%w: %s is disconnecting", ErrAlreadyConnected, m.target.ID)
	}

	dev, ok := m.resolve(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	m.stopScan()

	if m.state == StateConnecting {
		prev := *m.target
		m.stopPoll()
		log.Info().Str("previous", prev.ID).Str("device", dev.ID).Msg("restarting connect")
		if err := m.drv.Disconnect(prev); err != nil {
			log.Warn().Err(err).Str("device", prev.ID).Msg("failed to abandon previous connect")
		}
	}

	m.attempt++
	attempt := m.attempt
	m.target = &dev
	m.setState(StateConnecting, nil)

	report := func(ev driver.LinkEvent) {
		m.post(func() { m.handleLink(attempt, ev) })
	}

	err := m.drv.Connect(dev, report)
	if err != nil && bypass {
		if fc, ok := m.drv.(driver.ForcedConnector); ok {
			log.Warn().Err(err).Str("device", dev.ID).Msg("connect rejected, retrying with forced connect")
			err = fc.ForceConnect(dev, report)
		}
	}
	if err != nil {
		log.Error().Err(err).Str("device", dev.ID).Msg("connect rejected")
		cerr := fromDriver(err, ErrConnectionRejected)
		m.finishAttempt(cerr)
		return cerr
	}

	m.armPoll(attempt)
	return nil
}

// resolve looks id up in the scan session, then asks the driver
func (m *Manager) resolve(id string) (device.Device, bool) {
	if dev, ok := m.session.Get(id); ok {
		return dev, true
	}

	dev, ok := m.drv.Resolve(id)
	if !ok {
		return device.Device{}, false
	}
	if dev.Name == "" && m.known != nil {
		if entry := m.known.Get(id); entry != nil {
			dev.Name = entry.DisplayName()
		}
	}
	return dev, true
}

// Disconnect closes the open link. It returns false when not connected.
func (m *Manager) Disconnect() bool {
	var ok bool
	if err := m.do(func() { ok = m.disconnect() }); err != nil {
		return false
	}
	return ok
}

func (m *Manager) disconnect() bool {
	if m.state != StateConnected {
		return false
	}

	m.setState(StateDisconnecting, nil)
	if err := m.drv.Disconnect(*m.target); err != nil {
		log.Warn().Err(err).Str("device", m.target.ID).Msg("driver disconnect failed")
	}

	attempt := m.attempt
	m.grace = time.AfterFunc(m.opts.DisconnectGrace, func() {
		m.post(func() {
			if attempt == m.attempt && m.state == StateDisconnecting {
				m.finishAttempt(nil)
			}
		})
	})
	return true
}

func (m *Manager) handleLink(attempt uint64, ev driver.LinkEvent) {
	if attempt != m.attempt {
		log.Debug().Str("event", ev.Kind.String()).Str("device", ev.DeviceID).Msg("stale link event ignored")
		return
	}

	switch m.state {
	case StateConnecting:
		switch ev.Kind {
		case driver.LinkUp:
			m.confirm("callback")
		case driver.LinkFailed, driver.LinkDown:
			m.fail(ErrConnectionRejected)
		}
	case StateConnected:
		if ev.Kind != driver.LinkUp {
			m.finishAttempt(ErrLinkLost)
		}
	case StateDisconnecting:
		if ev.Kind != driver.LinkUp {
			m.finishAttempt(nil)
		}
	}
}

func (m *Manager) armPoll(attempt uint64) {
	m.elapsed = 0
	m.schedulePoll(attempt)
}

func (m *Manager) schedulePoll(attempt uint64) {
	m.poll = time.AfterFunc(m.opts.PollInterval, func() {
		m.post(func() { m.pollTick(attempt) })
	})
}

func (m *Manager) stopPoll() {
	if m.poll != nil {
		m.poll.Stop()
		m.poll = nil
	}
}

func (m *Manager) stopGrace() {
	if m.grace != nil {
		m.grace.Stop()
		m.grace = nil
	}
}

func (m *Manager) pollTick(attempt uint64) {
	if attempt != m.attempt || m.state != StateConnecting {
		return
	}
	m.elapsed += m.opts.PollInterval

	switch m.drv.LinkState(*m.target) {
	case driver.LinkConnected:
		m.confirm("poll")
		return
	case driver.LinkDisconnected, driver.LinkDisconnecting:
		m.fail(ErrConnectionRejected)
		return
	}

	if m.elapsed >= m.opts.PollTimeout {
		m.fail(ErrConnectionTimeout)
		return
	}
	m.schedulePoll(attempt)
}

// confirm completes a pending attempt; the competing signal is disarmed
func (m *Manager) confirm(via string) {
	m.stopPoll()
	log.Debug().Str("via", via).Str("device", m.target.ID).Msg("connect confirmed")
	m.setState(StateConnected, nil)

	if m.known != nil {
		if _, err := m.known.Remember(m.target.ID, m.target.Name, m.drv.Name()); err != nil {
			log.Warn().Err(err).Msg("failed to remember printer")
		}
	}
}

// fail abandons a pending attempt and asks the driver to stop trying
func (m *Manager) fail(reason error) {
	if err := m.drv.Disconnect(*m.target); err != nil {
		log.Warn().Err(err).Str("device", m.target.ID).Msg("failed to cancel connect")
	}
	m.finishAttempt(reason)
}

// finishAttempt moves to Disconnected and invalidates every callback and
// timer belonging to the current attempt
func (m *Manager) finishAttempt(reason error) {
	m.stopPoll()
	m.stopGrace()
	m.attempt++
	m.setState(StateDisconnected, reason)
	m.target = nil
}

// checkLink detects a link that dropped without the driver reporting it
func (m *Manager) checkLink() {
	if m.state != StateConnected {
		return
	}
	if ls := m.drv.LinkState(*m.target); ls == driver.LinkDisconnected {
		log.Warn().Str("device", m.target.ID).Msg("link dropped silently")
		m.finishAttempt(ErrLinkLost)
	}
}
