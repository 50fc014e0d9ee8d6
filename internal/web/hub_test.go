package web_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/srg/blepanel/internal/device"
	"github.com/srg/blepanel/internal/panel"
	"github.com/srg/blepanel/internal/permission"
	"github.com/srg/blepanel/internal/session"
	"github.com/srg/blepanel/internal/testutils"
	"github.com/srg/blepanel/internal/web"
	"github.com/srg/blepanel/scanner"
	suitelib "github.com/stretchr/testify/suite"
)

const waitFor = 2 * time.Second

type HubTestSuite struct {
	suitelib.Suite
	helper  *testutils.TestHelper
	device  *testutils.FakePeripheral
	ctrl    *panel.Controller
	server  *httptest.Server
	cancel  context.CancelFunc
	stopped chan struct{}
}

func (suite *HubTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.device = testutils.CreateLedPanel(testutils.PanelAddress)
	central := testutils.NewFakeCentral().
		AddPeripheral(suite.device).
		WithAdvertisements(testutils.CreateMockAdvertisement("LED-Panel", testutils.PanelAddress, -50))
	checker := permission.AllowAll()

	suite.ctrl = panel.New(
		scanner.NewRegistry(central, checker, nil, suite.helper.Logger),
		session.New(central, checker, nil, suite.helper.Logger),
		suite.helper.Logger,
	)

	hub := web.NewHub(suite.ctrl, web.Options{}, suite.helper.Logger)
	suite.server = httptest.NewServer(hub.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	suite.cancel = cancel
	suite.stopped = make(chan struct{})
	go func() {
		defer close(suite.stopped)
		hub.Broadcast(ctx)
	}()
}

func (suite *HubTestSuite) TearDownTest() {
	suite.cancel()
	<-suite.stopped
	suite.server.Close()
	suite.ctrl.Close()
}

func (suite *HubTestSuite) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(suite.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	suite.Require().NoError(err)
	suite.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

// waitMessage reads messages until match accepts one.
func (suite *HubTestSuite) waitMessage(conn *websocket.Conn, match func(web.Message) bool) web.Message {
	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		var msg web.Message
		suite.Require().NoError(conn.ReadJSON(&msg), "expected message MUST arrive before the deadline")
		if match(msg) {
			return msg
		}
	}
}

func stateIs(state session.State) func(web.Message) bool {
	return func(m web.Message) bool {
		return m.Type == web.MessageState && m.State != nil && m.State.State == state
	}
}

func (suite *HubTestSuite) TestInitialSnapshot() {
	conn := suite.dial()

	msg := suite.waitMessage(conn, func(m web.Message) bool { return m.Type == web.MessageState })
	suite.Require().NotNil(msg.State)
	suite.Equal(session.Disconnected, msg.State.State)
	suite.False(msg.State.Scanning)
}

func (suite *HubTestSuite) TestConnectAndToggleOverWebSocket() {
	// GOAL: Verify WebSocket commands drive the panel and state changes are pushed back
	//
	// TEST SCENARIO: connect, toggle LED 1 → Connected snapshot, applied LED 1 snapshot
	suite.device.Characteristic(device.ServiceButtonPrimaryUUID, device.CharLedUUID).
		On("Write", []byte{0x02}).Return(nil).Once()
	conn := suite.dial()

	suite.Require().NoError(conn.WriteJSON(web.Command{Type: web.CommandConnect, Address: testutils.PanelAddress}))
	suite.waitMessage(conn, stateIs(session.Connected))
	suite.Require().Eventually(func() bool {
		return suite.device.Characteristic(device.ServiceButtonSecondaryUUID, device.CharSecondaryButtonUUID).Subscribed()
	}, waitFor, 10*time.Millisecond)

	suite.Require().NoError(conn.WriteJSON(web.Command{Type: web.CommandToggleLed, Index: 1}))
	msg := suite.waitMessage(conn, func(m web.Message) bool {
		return m.State != nil && m.State.Leds.Applied[1]
	})
	suite.True(msg.State.Leds.Requested[1])

	suite.device.Characteristic(device.ServiceButtonPrimaryUUID, device.CharPrimaryButtonUUID).Notify([]byte{7})
	msg = suite.waitMessage(conn, func(m web.Message) bool { return m.State != nil && m.State.Primary == 7 })
	suite.Equal(testutils.PanelAddress, msg.State.Address)
}

func (suite *HubTestSuite) TestScanCommand() {
	conn := suite.dial()

	suite.Require().NoError(conn.WriteJSON(web.Command{Type: web.CommandScan}))
	msg := suite.waitMessage(conn, func(m web.Message) bool { return m.State != nil && len(m.State.Devices) == 1 })

	testutils.NewJSONAsserter(suite.T()).AssertValue(msg.State.Devices, `[
		{ "identifier": "aa:bb:cc:dd:ee:ff", "name": "LED-Panel", "rssi": -50 }
	]`)

	suite.Require().NoError(conn.WriteJSON(web.Command{Type: web.CommandStopScan}))
	suite.waitMessage(conn, func(m web.Message) bool { return m.State != nil && !m.State.Scanning })
}

func (suite *HubTestSuite) TestInvalidCommands() {
	conn := suite.dial()

	suite.Require().NoError(conn.WriteJSON(web.Command{Type: "reboot"}))
	msg := suite.waitMessage(conn, func(m web.Message) bool { return m.Type == web.MessageError })
	suite.Contains(msg.Error, "unknown command")

	suite.Require().NoError(conn.WriteJSON(web.Command{Type: web.CommandSetLed, Index: 9, On: true}))
	msg = suite.waitMessage(conn, func(m web.Message) bool { return m.Type == web.MessageError })
	suite.Contains(msg.Error, panel.ErrInvalidLed.Error())

	suite.Require().NoError(conn.WriteJSON(web.Command{Type: web.CommandConnect}))
	msg = suite.waitMessage(conn, func(m web.Message) bool { return m.Type == web.MessageError })
	suite.Contains(msg.Error, "address is required")

	suite.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg = suite.waitMessage(conn, func(m web.Message) bool { return m.Type == web.MessageError })
	suite.Equal("malformed command", msg.Error)
}

func (suite *HubTestSuite) TestMistypedCommandKeepsConnection() {
	// GOAL: Verify a well-formed command with wrong field types is answered, not dropped
	//
	// TEST SCENARIO: index sent as a string → malformed command error, next command still answered
	conn := suite.dial()
	suite.waitMessage(conn, func(m web.Message) bool { return m.Type == web.MessageState })

	suite.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"set_led","index":"one","on":true}`)))
	msg := suite.waitMessage(conn, func(m web.Message) bool { return m.Type == web.MessageError })
	suite.Equal("malformed command", msg.Error)

	suite.Require().NoError(conn.WriteJSON(web.Command{Type: "reboot"}), "connection MUST stay open after a mistyped command")
	msg = suite.waitMessage(conn, func(m web.Message) bool { return m.Type == web.MessageError })
	suite.Contains(msg.Error, "unknown command")
}

func (suite *HubTestSuite) TestStateEndpoint() {
	resp, err := http.Get(suite.server.URL + "/api/state")
	suite.Require().NoError(err)
	defer resp.Body.Close()

	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal("application/json", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)

	testutils.NewJSONAsserter(suite.T(), testutils.WithIgnoreExtraKeys(false)).Assert(string(body), `{
		"state": "disconnected",
		"primary_clicks": 0,
		"secondary_clicks": 0,
		"leds": { "requested": [false, false, false], "applied": [false, false, false] },
		"devices": [],
		"scanning": false
	}`)

	resp, err = http.Post(suite.server.URL+"/api/state", "application/json", nil)
	suite.Require().NoError(err)
	resp.Body.Close()
	suite.Equal(http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHubTestSuite(t *testing.T) {
	suitelib.Run(t, new(HubTestSuite))
}
