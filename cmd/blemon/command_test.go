package main

import (
	"bytes"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/testutils/mocks"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs cobra commands against a mocked central.
// All cmd/blemon test suites embed it.
type CommandTestSuite struct {
	suite.Suite

	central     *mocks.MockCentral
	origCentral func(*logrus.Logger) device.Central
}

func (s *CommandTestSuite) SetupTest() {
	s.central = &mocks.MockCentral{}
	s.origCentral = newCentral
	newCentral = func(*logrus.Logger) device.Central { return s.central }
}

func (s *CommandTestSuite) TearDownTest() {
	newCentral = s.origCentral
}

// ExecuteCommand runs the root command with args and returns stdout,
// stderr and the error. Flags of every command are reset first, since
// cobra keeps flag values between executions.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// syncBuffer is a bytes.Buffer safe for writes from callback goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
