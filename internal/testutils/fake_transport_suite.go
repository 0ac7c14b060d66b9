//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// FakeTransportSuite is a reusable suite base for code that talks to hubs
// through a transport. Every test gets a fresh FakeTransport.
//
// Usage:
//
//	type RegistrySuite struct {
//	    testutils.FakeTransportSuite
//	    reg *registry.Registry
//	}
//
//	func (s *RegistrySuite) SetupTest() {
//	    s.FakeTransportSuite.SetupTest() // call parent first, then wire s.Transport
//	    s.reg = registry.New(s.Transport, ...)
//	}
type FakeTransportSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Transport   *FakeTransport
	TestTimeout time.Duration
}

// SetupSuite runs once before all tests in the suite
func (s *FakeTransportSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 2 * time.Second
	s.Logger.Debug("Suite setup completed")
}

// SetupTest gives each test a fresh transport
func (s *FakeTransportSuite) SetupTest() {
	s.Transport = NewFakeTransport()
}

// TearDownTest drops the transport
func (s *FakeTransportSuite) TearDownTest() {
	s.Transport = nil
}

// ExpectSend waits for the next send and fails the test if none arrives
func (s *FakeTransportSuite) ExpectSend() SentCommand {
	rec, ok := s.Transport.WaitForSend(s.TestTimeout)
	s.Require().True(ok, "transport MUST receive a command within %s", s.TestTimeout)
	return rec
}

// ExpectNoSend fails the test if a send arrives within a short window
func (s *FakeTransportSuite) ExpectNoSend() {
	rec, ok := s.Transport.WaitForSend(50 * time.Millisecond)
	s.Require().False(ok, "transport MUST NOT receive %s while a write is outstanding", rec.Command)
}

// WaitUntil polls cond for up to TestTimeout
func (s *FakeTransportSuite) WaitUntil(cond func() bool, msg string) {
	s.Require().True(WaitFor(s.TestTimeout, cond), msg)
}
