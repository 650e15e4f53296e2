// Package venue implements the generic WebSocket adapter run loop and the
// two venue concretions (a regulated centralized exchange and a
// decentralized CLOB). The run loop owns connect/auth/subscribe/reconnect;
// each concretion only supplies the four methods of Adapter.
package venue

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// Adapter is the venue-specific behavior the generic Runner drives. A
// concretion never touches the socket directly outside of SendSubscribe;
// all read/write-deadline and reconnect bookkeeping lives in the Runner.
type Adapter interface {
	// WSURL returns the endpoint to dial.
	WSURL() string
	// AuthHeaders returns headers to send on the WS upgrade request. Nil or
	// empty for venues that do not authenticate public market data.
	AuthHeaders() (http.Header, error)
	// SendSubscribe writes whatever subscribe frame(s) the venue expects
	// for the given set of market/asset identifiers.
	SendSubscribe(conn *websocket.Conn, marketIDs []string) error
	// HandleMessage is invoked once per inbound frame, in arrival order.
	HandleMessage(raw []byte)
}
