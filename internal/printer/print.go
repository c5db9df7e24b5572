package printer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/thereceipt/label-engine/internal/device"
	"github.com/thereceipt/label-engine/internal/driver"
	"github.com/thereceipt/label-engine/internal/job"
	"github.com/thereceipt/label-engine/pkg/labelformat"
)

// connectedTarget returns the connected device or ErrNotConnected
func (m *Manager) connectedTarget() (device.Device, error) {
	var (
		dev device.Device
		err error
	)
	if derr := m.do(func() {
		if m.state != StateConnected {
			err = ErrNotConnected
			return
		}
		dev = *m.target
	}); derr != nil {
		return dev, derr
	}
	return dev, err
}

// Status queries the connected printer's status code
func (m *Manager) Status(ctx context.Context) (int, error) {
	if _, err := m.connectedTarget(); err != nil {
		return 0, err
	}

	code, err := m.drv.Status(ctx)
	if err != nil {
		return 0, fromDriver(err, ErrNotConnected)
	}
	return code, nil
}

// Build validates and normalizes a print request without printing it
func (m *Manager) Build(spec *labelformat.Job) (*job.PrintJob, error) {
	j, err := m.opts.Builder.Build(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrint, err)
	}
	return j, nil
}

// Print builds spec and transmits it to the connected printer. It returns
// the history id of the job; a nil error means the driver accepted it.
// Nothing is transmitted unless the job is valid and a printer is connected.
func (m *Manager) Print(ctx context.Context, spec *labelformat.Job) (string, error) {
	dev, err := m.connectedTarget()
	if err != nil {
		return "", err
	}

	entry := m.history.Start(dev)

	j, err := m.Build(spec)
	if err != nil {
		m.history.Finish(entry.ID, err)
		log.Error().Err(err).Str("job", entry.ID).Msg("❌ print job rejected")
		return entry.ID, err
	}
	m.history.Describe(entry.ID, j)

	m.txMu.Lock()
	err = m.drv.Transmit(ctx, j)
	m.txMu.Unlock()

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPrint, err)
		m.history.Finish(entry.ID, err)
		log.Error().Err(err).Str("job", entry.ID).Msg("❌ print job failed")
		return entry.ID, err
	}

	m.history.Finish(entry.ID, nil)
	log.Info().Str("job", entry.ID).Int("labels", j.Labels()).Msg("✅ print job completed")
	return entry.ID, nil
}

// CancelPrint asks the driver to abort an in-flight print. Back-ends that
// cannot cancel are treated as success.
func (m *Manager) CancelPrint() error {
	err := m.drv.CancelPrint()
	if err != nil && !errors.Is(err, driver.ErrUnsupported) {
		log.Warn().Err(err).Msg("cancel print failed")
	}
	return nil
}
