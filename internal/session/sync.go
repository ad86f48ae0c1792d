package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
	"github.com/learnzy-life/daring-health-bridge/internal/device"
	"github.com/learnzy-life/daring-health-bridge/internal/protocol"
)

// SyncItem records the outcome of one best-effort sync step.
type SyncItem struct {
	Name  string             `json:"name"`
	Cap   catalog.Capability `json:"capability,omitempty"`
	OK    bool               `json:"ok"`
	Error string             `json:"error,omitempty"`
}

// SyncReport aggregates the per-item outcomes of one sync pass. A
// failed item is recorded, never propagated: partial failure is not
// total failure.
type SyncReport struct {
	ID          uuid.UUID  `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	TimeSynced  bool       `json:"time_synced"`
	Battery     *int       `json:"battery,omitempty"`
	Items       []SyncItem `json:"items"`
}

// Failed returns the names of items that did not complete.
func (r *SyncReport) Failed() []string {
	var failed []string
	for _, item := range r.Items {
		if !item.OK {
			failed = append(failed, item.Name)
		}
	}
	return failed
}

// Sync pushes the current time to the ring and reads every readable
// capability, best-effort and independently per item. It requires a
// connected session and never aborts early because one item failed.
// The last-sync timestamp is updated as long as the session stayed
// connected throughout.
func (s *Session) Sync(ctx context.Context) (*SyncReport, error) {
	if _, err := s.connectedTransport(); err != nil {
		return nil, err
	}

	report := &SyncReport{
		ID:        uuid.New(),
		StartedAt: time.Now(),
	}

	s.logger.Info("Starting sync")

	// Time sync travels over the control channel.
	item := SyncItem{Name: "time_sync"}
	if err := s.WriteCommand(protocol.EncodeTimeSync(time.Now())); err != nil {
		item.Error = err.Error()
		s.logger.WithField("error", err).Warn("Time sync failed")
	} else {
		item.OK = true
		report.TimeSynced = true
	}
	report.Items = append(report.Items, item)

	// Best-effort read of each readable capability, in catalog order.
	for _, cap := range catalog.Readable() {
		if ctx.Err() != nil {
			break
		}

		item := SyncItem{Name: "read_" + string(cap), Cap: cap}

		data, err := s.ReadCapability(cap)
		if err == nil {
			var m *protocol.Measurement
			m, err = protocol.Decode(cap, data)
			if err == nil {
				if cap == catalog.Battery && m.Battery != nil {
					level := m.Battery.Percent
					report.Battery = &level
					s.mu.Lock()
					s.battery = &level
					s.mu.Unlock()
				}
				s.publish(m)
			}
		}

		if err != nil {
			item.Error = err.Error()
			s.logger.WithFields(logrus.Fields{
				"capability": cap,
				"error":      err,
			}).Warn("Sync item failed")
		} else {
			item.OK = true
		}
		report.Items = append(report.Items, item)
	}

	report.CompletedAt = time.Now()

	// Only a session that survived the whole pass advances the
	// last-sync timestamp.
	if _, err := s.connectedTransport(); err != nil {
		return report, device.ErrLinkLost
	}

	s.mu.Lock()
	s.lastSync = report.CompletedAt
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"items":  len(report.Items),
		"failed": len(report.Failed()),
	}).Info("Sync completed")
	return report, nil
}
