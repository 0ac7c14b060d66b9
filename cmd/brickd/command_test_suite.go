//go:build test

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/brickd/internal/testutils"
	"github.com/srg/brickd/internal/transport/goble"
	"github.com/srg/brickd/pkg/config"
)

// Test hub addresses, in sorted order
const (
	TestHubAddress1 = "00:07:80:d0:57:32"
	TestHubAddress2 = "00:07:80:d0:57:33"
)

// fakeLink adapts FakeTransport to the CLI Link: connecting always succeeds
// and acknowledgments go to whichever listener the app installed
type fakeLink struct {
	*testutils.FakeTransport

	mu        sync.Mutex
	listener  goble.Listener
	connected []string
	closed    bool
}

func (f *fakeLink) SetListener(l goble.Listener) {
	f.mu.Lock()
	f.listener = l
	f.mu.Unlock()
	f.OnAck(l.OnWriteComplete).OnRead(l.OnCharacteristicRead)
}

func (f *fakeLink) Connect(_ context.Context, address string) error {
	f.mu.Lock()
	f.connected = append(f.connected, address)
	l := f.listener
	f.mu.Unlock()

	if l != nil {
		l.SetConnected(address, true)
	}
	return nil
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLink) Connected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connected...)
}

// CommandTestSuite runs brickd commands against a fake link and a registry
// file in a per-test directory.
// All cmd/brickd test suites should embed this instead of FakeTransportSuite.
type CommandTestSuite struct {
	testutils.FakeTransportSuite

	Link       *fakeLink
	ConfigPath string
	StorePath  string
	Timeout    string

	originalFactory func(*config.Config, *logrus.Logger) Link
}

// SetupTest gives each test a fresh transport, config and registry file
func (s *CommandTestSuite) SetupTest() {
	s.FakeTransportSuite.SetupTest()
	s.Transport.WithAutoAck()
	s.Link = &fakeLink{FakeTransport: s.Transport}

	s.originalFactory = linkFactory
	linkFactory = func(*config.Config, *logrus.Logger) Link { return s.Link }

	color.NoColor = true
	s.Timeout = "2s"

	dir := s.T().TempDir()
	s.StorePath = filepath.Join(dir, "hubs.yaml")
	s.ConfigPath = filepath.Join(dir, "brickd.yaml")
	s.WriteConfig("")
}

// TearDownTest restores the real link factory
func (s *CommandTestSuite) TearDownTest() {
	linkFactory = s.originalFactory
	s.FakeTransportSuite.TearDownTest()
}

// WriteConfig writes the test config; extra is appended as raw YAML
func (s *CommandTestSuite) WriteConfig(extra string) {
	content := "log_level: error\nstore:\n  driver: yaml\n  path: " + s.StorePath + "\n" + extra
	s.Require().NoError(os.WriteFile(s.ConfigPath, []byte(content), 0o644), "config MUST be written")
}

// ExecuteCommand runs a cobra command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// Brickd runs "brickd <command path> <flags> <args>" where command path is the
// space-separated subcommand, e.g. "hubs add"
func (s *CommandTestSuite) Brickd(path string, args ...string) (string, error) {
	full := strings.Fields(path)
	full = append(full, "--config", s.ConfigPath, "--timeout", s.Timeout)
	full = append(full, args...)
	return s.ExecuteCommand(rootCmd, full...)
}

// BrickdWithInput is Brickd with stdin replaced by input
func (s *CommandTestSuite) BrickdWithInput(input, path string, args ...string) (string, error) {
	rootCmd.SetIn(strings.NewReader(input))
	defer rootCmd.SetIn(nil)
	return s.Brickd(path, args...)
}
