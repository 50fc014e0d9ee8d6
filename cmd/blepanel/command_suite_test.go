package main

import (
	"bytes"
	"context"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/internal/devicefactory"
	"github.com/srg/blepanel/internal/testutils"
	"github.com/srg/blepanel/pkg/config"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// CommandTestSuite runs commands against a fake central.
// All cmd/blepanel test suites should embed it.
type CommandTestSuite struct {
	suite.Suite
	Helper  *testutils.TestHelper
	Central *testutils.FakeCentral
	Panel   *testutils.FakePeripheral

	configPath      string
	originalFactory func(*config.Config, *logrus.Logger) (device.Central, error)
	originalNoColor bool
}

func (s *CommandTestSuite) SetupTest() {
	s.Helper = testutils.NewTestHelper(s.T())
	s.Panel = testutils.CreateLedPanel(testutils.PanelAddress)
	s.Central = testutils.NewFakeCentral().AddPeripheral(s.Panel)
	s.configPath = filepath.Join(s.T().TempDir(), "config.yaml")

	s.originalFactory = devicefactory.CentralFactory
	devicefactory.CentralFactory = func(*config.Config, *logrus.Logger) (device.Central, error) {
		return s.Central, nil
	}
	s.originalNoColor = color.NoColor
	color.NoColor = true
}

func (s *CommandTestSuite) TearDownTest() {
	devicefactory.CentralFactory = s.originalFactory
	color.NoColor = s.originalNoColor
}

// ExecuteCommand runs blepanel with args against an isolated config file.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (stdout, stderr string, err error) {
	return s.ExecuteCommandContext(context.Background(), args...)
}

func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", s.configPath}, args...))
	err = cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// LedChar returns the panel's LED characteristic mock.
func (s *CommandTestSuite) LedChar() *testutils.MockCharacteristic {
	return s.Panel.Characteristic(device.ServiceButtonPrimaryUUID, device.CharLedUUID)
}
