package main

import (
	"testing"

	"github.com/srg/blemon/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type UUIDCommandTestSuite struct {
	CommandTestSuite
}

func (s *UUIDCommandTestSuite) TestResolvesNames() {
	// GOAL: Every spelling of a UUID resolves to the same short form and SIG name
	//
	// TEST SCENARIO: service, characteristic, descriptor and vendor UUIDs → one aligned row each

	out, _, err := s.ExecuteCommand("uuid", "0x181A", "00002a6e-0000-1000-8000-00805f9b34fb", "2902", "6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(out, `
INPUT                                 UUID                              FULL                                  KIND            NAME
0x181A                                181a                              0000181a-0000-1000-8000-00805f9b34fb  service         Environmental Sensing
00002a6e-0000-1000-8000-00805f9b34fb  2a6e                              00002a6e-0000-1000-8000-00805f9b34fb  characteristic  Temperature
2902                                  2902                              00002902-0000-1000-8000-00805f9b34fb  descriptor      Client Characteristic Configuration
6e400001-b5a3-f393-e0a9-e50e24dcca9e  6e400001b5a3f393e0a9e50e24dcca9e  6e400001-b5a3-f393-e0a9-e50e24dcca9e  -               unknown
`)
}

func (s *UUIDCommandTestSuite) TestInvalidUUID() {
	out, _, err := s.ExecuteCommand("uuid", "2a37", "xyz")

	s.ErrorContains(err, "invalid UUID")
	s.Contains(out, "Heart Rate Measurement", "valid inputs MUST still be printed")
	s.Contains(out, "invalid")
}

func TestUUIDCommandTestSuite(t *testing.T) {
	suite.Run(t, new(UUIDCommandTestSuite))
}
