package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ServeTestSuite struct {
	CommandTestSuite
}

func (s *ServeTestSuite) TestServeCmd_StopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan commandResult, 1)
	go func() {
		out, _, err := s.ExecuteCommandContext(ctx, "serve", "--listen", "127.0.0.1:0")
		result <- commandResult{out: out, err: err}
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case res := <-result:
		s.NoError(res.err, "cancelling MUST stop the server cleanly")
		s.Equal("Serving panel on http://127.0.0.1:0 (Ctrl+C to stop)\n", res.out)
	case <-time.After(waitFor):
		s.FailNow("serve did not stop")
	}
}

func (s *ServeTestSuite) TestServeCmd_InvalidListenAddress() {
	_, _, err := s.ExecuteCommand("serve", "--listen", "127.0.0.1:99999")

	s.Require().Error(err)
	s.Contains(err.Error(), "web hub")
}

func TestServeTestSuite(t *testing.T) {
	suite.Run(t, new(ServeTestSuite))
}
