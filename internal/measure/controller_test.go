package measure_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/learnzy-life/daring-health-bridge/internal/catalog"
	"github.com/learnzy-life/daring-health-bridge/internal/device"
	"github.com/learnzy-life/daring-health-bridge/internal/measure"
	"github.com/learnzy-life/daring-health-bridge/internal/session"
	"github.com/learnzy-life/daring-health-bridge/internal/testutils"
)

type ControllerTestSuite struct {
	suite.Suite

	transport *testutils.FakeTransport
	sess      *session.Session
	ctrl      *measure.Controller
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func (s *ControllerTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s.transport = testutils.NewFakeTransport()
	s.sess = session.New(session.Options{
		TransportFactory: func() device.Transport { return s.transport },
		ConnectTimeout:   time.Second,
		Logger:           logger,
	})
	s.ctrl = measure.NewController(s.sess, logger)
}

func (s *ControllerTestSuite) connect() {
	ring := &testutils.FakeDeviceInfo{DeviceID: "AA:BB:CC:DD:EE:FF", Addr: "AA:BB:CC:DD:EE:FF"}
	s.Require().NoError(s.sess.Connect(context.Background(), ring))
}

func (s *ControllerTestSuite) heartRateDesc() *catalog.ServiceDescriptor {
	desc, err := catalog.Resolve(catalog.HeartRate)
	s.Require().NoError(err)
	return desc
}

func (s *ControllerTestSuite) TestStartArmsAndWritesCommand() {
	s.connect()

	s.Require().NoError(s.ctrl.Start(catalog.HeartRate))

	s.True(s.ctrl.IsMeasuring(catalog.HeartRate))
	desc := s.heartRateDesc()
	s.True(s.transport.Subscribed(desc.Service.String(), desc.MeasurementChar.String()))

	writes := s.transport.Writes()
	s.Require().Len(writes, 1)
	s.Equal([]byte{0x16, 0x01}, writes[0])
}

func (s *ControllerTestSuite) TestStartTwiceIsNoOp() {
	s.connect()

	s.Require().NoError(s.ctrl.Start(catalog.HeartRate))
	s.Require().NoError(s.ctrl.Start(catalog.HeartRate))

	s.Len(s.transport.Writes(), 1, "second start writes nothing")
}

func (s *ControllerTestSuite) TestStartWithoutConnection() {
	err := s.ctrl.Start(catalog.HeartRate)

	var unavailable *measure.MeasurementUnavailableError
	s.Require().ErrorAs(err, &unavailable)
	s.Equal(catalog.HeartRate, unavailable.Capability)
	s.ErrorIs(err, device.ErrNotConnected)
	s.False(s.ctrl.IsMeasuring(catalog.HeartRate))
}

func (s *ControllerTestSuite) TestStartUnknownCapability() {
	var unsupported *catalog.UnsupportedCapabilityError
	s.ErrorAs(s.ctrl.Start(catalog.Capability("glucose")), &unsupported)
}

func (s *ControllerTestSuite) TestStartRollsBackOnWriteFailure() {
	s.connect()
	s.transport.WriteErr = errors.New("gatt write rejected")

	err := s.ctrl.Start(catalog.HeartRate)

	var unavailable *measure.MeasurementUnavailableError
	s.Require().ErrorAs(err, &unavailable)
	s.False(s.ctrl.IsMeasuring(catalog.HeartRate))

	desc := s.heartRateDesc()
	s.False(s.transport.Subscribed(desc.Service.String(), desc.MeasurementChar.String()),
		"half-armed subscription is rolled back")

	// A retry after the fault behaves like a first attempt.
	s.transport.WriteErr = nil
	s.NoError(s.ctrl.Start(catalog.HeartRate))
	s.True(s.ctrl.IsMeasuring(catalog.HeartRate))
}

func (s *ControllerTestSuite) TestStartFallsBackToAlternateOpcode() {
	s.connect()
	s.transport.WriteErrOnce = errors.New("primary opcode rejected")

	s.Require().NoError(s.ctrl.Start(catalog.HeartRate))
	s.True(s.ctrl.IsMeasuring(catalog.HeartRate))

	writes := s.transport.Writes()
	s.Require().Len(writes, 1)
	s.Equal([]byte{0x69, 0x01}, writes[0], "alternate start pair reached the wire")
}

func (s *ControllerTestSuite) TestStartNoAlternateSurfacesPrimaryError() {
	s.connect()
	s.transport.WriteErrOnce = errors.New("primary opcode rejected")

	// HRV has no alternate pair, so the primary failure stands.
	err := s.ctrl.Start(catalog.HRV)

	var unavailable *measure.MeasurementUnavailableError
	s.Require().ErrorAs(err, &unavailable)
	s.False(s.ctrl.IsMeasuring(catalog.HRV))
}

func (s *ControllerTestSuite) TestStopClearsFlagUnconditionally() {
	s.connect()
	s.Require().NoError(s.ctrl.Start(catalog.HeartRate))

	s.transport.WriteErr = errors.New("gatt write rejected")
	s.transport.UnsubscribeErr = errors.New("unsubscribe rejected")

	err := s.ctrl.Stop(catalog.HeartRate)
	s.Error(err, "step failures are reported")
	s.False(s.ctrl.IsMeasuring(catalog.HeartRate), "the flag clears even when steps fail")
}

func (s *ControllerTestSuite) TestStopWritesStopCommand() {
	s.connect()
	s.Require().NoError(s.ctrl.Start(catalog.HeartRate))

	s.Require().NoError(s.ctrl.Stop(catalog.HeartRate))

	writes := s.transport.Writes()
	s.Require().Len(writes, 2)
	s.Equal([]byte{0x16, 0x00}, writes[1])

	desc := s.heartRateDesc()
	s.False(s.transport.Subscribed(desc.Service.String(), desc.MeasurementChar.String()))
}

func (s *ControllerTestSuite) TestLinkLossClearsMeasuringFlags() {
	s.connect()
	s.Require().NoError(s.ctrl.Start(catalog.HeartRate))
	s.Require().NoError(s.ctrl.Start(catalog.BloodOxygen))

	s.transport.DropLink()

	s.False(s.ctrl.IsMeasuring(catalog.HeartRate))
	s.False(s.ctrl.IsMeasuring(catalog.BloodOxygen))
	s.Empty(s.ctrl.Measuring())
}

func (s *ControllerTestSuite) TestDisconnectClearsMeasuringFlags() {
	s.connect()
	s.Require().NoError(s.ctrl.Start(catalog.HeartRate))

	s.Require().NoError(s.sess.Disconnect())

	s.False(s.ctrl.IsMeasuring(catalog.HeartRate))
}

func (s *ControllerTestSuite) TestMeasuringLists() {
	s.connect()
	s.Empty(s.ctrl.Measuring())

	s.Require().NoError(s.ctrl.Start(catalog.HeartRate))
	s.Require().NoError(s.ctrl.Start(catalog.Stress))

	measuring := s.ctrl.Measuring()
	s.ElementsMatch([]catalog.Capability{catalog.HeartRate, catalog.Stress}, measuring)
}

func (s *ControllerTestSuite) TestSetTimingInterval() {
	s.connect()

	s.Require().NoError(s.ctrl.SetTimingInterval(catalog.Stress, 30))

	writes := s.transport.Writes()
	s.Require().Len(writes, 1)
	s.Equal([]byte{0x36, 0x02, 30}, writes[0])
}
