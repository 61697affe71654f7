/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/partyquiz/engine/internal/eventbus"
	"github.com/partyquiz/engine/internal/registry"
	"github.com/partyquiz/engine/internal/supervisor"
	"github.com/partyquiz/engine/internal/transport"
)

// serveWebSocket upgrades a connection and binds it to the named
// session's worker. Role/playerId/displayName/fingerprint arrive as
// query parameters, since the upgrade handshake itself carries no body.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	code := strings.ToUpper(p.ByName("code"))
	worker, ok := s.Manager.Get(code)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	role := eventbus.Role(strings.ToUpper(q.Get("role")))
	switch role {
	case eventbus.RoleHost, eventbus.RolePlayer, eventbus.RoleDisplay:
	default:
		role = eventbus.RolePlayer
	}
	playerID := q.Get("playerId")
	if playerID == "" && role == eventbus.RolePlayer {
		playerID = newSocketID()
	}
	displayName := q.Get("displayName")
	fingerprint := q.Get("fingerprint")

	socketID := newSocketID()
	socket := eventbus.NewSocket(socketID, code, role, playerID)
	socket.OnOffline = func(id string) {
		s.Registry.Disconnect(id)
	}
	s.Bus.Register(socket)
	s.Registry.Connect(socketID, code, registry.Role(role), playerID)

	conn, err := transport.Upgrade(w, r, socket)
	if err != nil {
		s.Bus.Unregister(code, socketID)
		return
	}
	conn.Verbose = s.Config.Verbose

	conn.OnCommand = func(socketID string, frame transport.Frame) {
		worker.Send(supervisor.Command{
			Type:     frame.Type,
			SocketID: socketID,
			PlayerID: playerID,
			Role:     registry.Role(role),
			Payload:  frame.Payload,
		})
	}
	conn.OnDisconnect = func(socketID string) {
		s.Bus.Unregister(code, socketID)
		s.Registry.Disconnect(socketID)
	}

	s.logf("SERVE: WebSocket connected %s role=%s session=%s from %s", socketID, role, code, realIP(r))

	if playerID != "" && role == eventbus.RolePlayer {
		payload, _ := json.Marshal(map[string]string{"playerId": playerID, "displayName": displayName, "deviceFingerprint": fingerprint})
		worker.Send(supervisor.Command{Type: "JOIN_SESSION", SocketID: socketID, PlayerID: playerID, Role: registry.Role(role), Payload: payload})
	}

	conn.Serve()
}

func newSocketID() string {
	return uuid.NewString()
}
