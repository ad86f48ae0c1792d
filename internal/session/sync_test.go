package session_test

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
	"github.com/learnzy-life/daring-health-bridge/internal/device"
	"github.com/learnzy-life/daring-health-bridge/internal/session"
	"github.com/learnzy-life/daring-health-bridge/internal/testutils"
)

type SyncTestSuite struct {
	suite.Suite

	transport *testutils.FakeTransport
	sess      *session.Session
}

func TestSyncTestSuite(t *testing.T) {
	suite.Run(t, new(SyncTestSuite))
}

func (s *SyncTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s.transport = testutils.NewFakeTransport()
	s.loadAllReadables()

	s.sess = session.New(session.Options{
		TransportFactory: func() device.Transport { return s.transport },
		ConnectTimeout:   time.Second,
		Logger:           logger,
	})

	ring := &testutils.FakeDeviceInfo{DeviceID: "AA:BB:CC:DD:EE:FF", Addr: "AA:BB:CC:DD:EE:FF"}
	s.Require().NoError(s.sess.Connect(context.Background(), ring))
}

// loadAllReadables scripts a plausible payload for every readable
// capability.
func (s *SyncTestSuite) loadAllReadables() {
	le32 := func(vals ...uint32) []byte {
		buf := make([]byte, 0, len(vals)*4)
		for _, v := range vals {
			buf = binary.LittleEndian.AppendUint32(buf, v)
		}
		return buf
	}
	tempBuf := []byte{0x01, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(tempBuf[1:], math.Float32bits(36.5))

	payloads := map[catalog.Capability][]byte{
		catalog.HRV:         {0x01, 0x32, 0x00},
		catalog.Stress:      {0x01, 0x28},
		catalog.BloodOxygen: {0x01, 0x61},
		catalog.Temperature: tempBuf,
		catalog.Steps:       le32(4200, 3100, 180),
		catalog.Sleep:       le32(450, 90, 270, 60, 30),
		catalog.Battery:     {88},
		catalog.DeviceInfo:  []byte("R02_1.0.3"),
	}

	for cap, data := range payloads {
		desc, err := catalog.Resolve(cap)
		s.Require().NoError(err)
		s.transport.SetRead(desc.Service.String(), desc.ReadChar.String(), data)
	}
}

func (s *SyncTestSuite) TestSyncRequiresConnection() {
	s.Require().NoError(s.sess.Disconnect())

	_, err := s.sess.Sync(context.Background())
	s.ErrorIs(err, device.ErrNotConnected)
}

func (s *SyncTestSuite) TestSyncReadsEverythingAndSyncsTime() {
	events, cancel := s.sess.Listen()
	defer cancel()

	before := s.sess.LastSync()
	time.Sleep(time.Millisecond)

	report, err := s.sess.Sync(context.Background())
	s.Require().NoError(err)

	s.True(report.TimeSynced)
	s.Empty(report.Failed())
	// time_sync plus one item per readable capability.
	s.Len(report.Items, 1+len(catalog.Readable()))

	s.Require().NotNil(report.Battery)
	s.Equal(88, *report.Battery)

	// Time sync went over the control channel with the right opcode.
	writes := s.transport.Writes()
	s.Require().NotEmpty(writes)
	s.Equal(byte(0x01), writes[0][0])
	s.Len(writes[0], 9)

	// The decoded readings were published to listeners.
	received := map[catalog.Capability]bool{}
	timeout := time.After(time.Second)
	for len(received) < len(catalog.Readable()) {
		select {
		case ev := <-events:
			received[ev.Capability] = true
		case <-timeout:
			s.FailNow("timed out waiting for sync events")
		}
	}

	s.True(s.sess.LastSync().After(before), "sync advances the last-sync timestamp")
}

func (s *SyncTestSuite) TestSyncItemFailureDoesNotAbort() {
	hrv, err := catalog.Resolve(catalog.HRV)
	s.Require().NoError(err)
	s.transport.FailRead(hrv.Service.String(), hrv.ReadChar.String(), errors.New("gatt timeout"))

	report, err := s.sess.Sync(context.Background())
	s.Require().NoError(err, "one failed item never fails the pass")

	s.Equal([]string{"read_hrv"}, report.Failed())
	s.Require().NotNil(report.Battery, "later items still ran")
}

func (s *SyncTestSuite) TestSyncBatteryFailureLeavesLevelAbsent() {
	battery, err := catalog.Resolve(catalog.Battery)
	s.Require().NoError(err)
	s.transport.FailRead(battery.Service.String(), battery.ReadChar.String(), errors.New("gatt timeout"))

	report, err := s.sess.Sync(context.Background())
	s.Require().NoError(err)

	s.Nil(report.Battery)
	s.Contains(report.Failed(), "read_battery")
}

func (s *SyncTestSuite) TestSyncUndecodablePayloadIsItemFailure() {
	sleep, err := catalog.Resolve(catalog.Sleep)
	s.Require().NoError(err)
	s.transport.SetRead(sleep.Service.String(), sleep.ReadChar.String(), []byte{0x01, 0x02})

	report, err := s.sess.Sync(context.Background())
	s.Require().NoError(err)

	s.Equal([]string{"read_sleep"}, report.Failed())
}

func (s *SyncTestSuite) TestSyncLinkLossReturnsPartialReport() {
	before := s.sess.LastSync()

	// Drop the link while the device-info read is in flight.
	deviceInfo, err := catalog.Resolve(catalog.DeviceInfo)
	s.Require().NoError(err)
	infoChar := deviceInfo.ReadChar.String()
	s.transport.ReadHook = func(_, characteristic string) {
		if characteristic == infoChar {
			s.transport.DropLink()
		}
	}

	report, err := s.sess.Sync(context.Background())
	s.ErrorIs(err, device.ErrLinkLost)
	s.Require().NotNil(report, "the partial report survives the loss")
	s.Contains(report.Failed(), "read_device_info")

	s.Equal(before, s.sess.LastSync(), "a lost session does not advance last-sync")
}
