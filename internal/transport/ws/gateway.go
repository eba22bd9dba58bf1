// Package ws exposes the command engine over a websocket endpoint.
//
// A client connects to /ws, identifies itself with the first frame, and then
// exchanges JSON envelopes. The gateway owns connection lifecycle: it
// registers identified connections (displacing any earlier connection for the
// same user) and unregisters them when the read loop ends.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/praxisplay/gameroom/internal/engine"
	"github.com/praxisplay/gameroom/internal/errors"
	"github.com/praxisplay/gameroom/internal/registry"
	"github.com/praxisplay/gameroom/internal/user"
)

// identifyWait bounds how long a fresh connection may take to identify.
const identifyWait = 15 * time.Second

// identifyPayload is the body of the mandatory first frame.
type identifyPayload struct {
	UserID int64    `json:"user_id"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles,omitempty"`
}

// Gateway upgrades HTTP requests and bridges frames to the engine.
type Gateway struct {
	engine   *engine.Engine
	registry *registry.Registry
	upgrader websocket.Upgrader
}

// NewGateway creates a gateway over the given engine and registry.
func NewGateway(eng *engine.Engine, reg *registry.Registry) *Gateway {
	return &Gateway{
		engine:   eng,
		registry: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the HTTP handler serving /ws and /healthz.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed remote=%s err=%v", r.RemoteAddr, err)
		return
	}

	c := newConn(socket)
	identity, err := g.identify(socket)
	if err != nil {
		log.Printf("identify failed remote=%s err=%v", r.RemoteAddr, err)
		c.Close("identify-failed")
		return
	}

	g.registry.Register(identity.ID, c)
	go c.writePump()
	g.ack(c, identity)

	log.Printf("connection identified user=%d name=%s", identity.ID, identity.Name)
	g.readLoop(r.Context(), identity, c)
}

// identify reads and validates the mandatory first frame.
func (g *Gateway) identify(socket *websocket.Conn) (user.User, error) {
	socket.SetReadLimit(maxMessageSize)
	if err := socket.SetReadDeadline(time.Now().Add(identifyWait)); err != nil {
		return user.User{}, err
	}
	_, frame, err := socket.ReadMessage()
	if err != nil {
		return user.User{}, err
	}

	var env engine.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return user.User{}, err
	}
	if env.Type != "identify" {
		return user.User{}, errors.Reject(errors.CodeInvalidArgument, "first frame must be identify, got %q", env.Type)
	}
	var p identifyPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return user.User{}, err
	}
	if p.UserID == 0 {
		return user.User{}, errors.Reject(errors.CodeInvalidArgument, "identify requires a non-zero user id")
	}
	return user.User{ID: p.UserID, Name: p.Name, Roles: p.Roles}, nil
}

func (g *Gateway) ack(c *conn, identity user.User) {
	body, err := json.Marshal(identifyPayload{UserID: identity.ID, Name: identity.Name, Roles: identity.Roles})
	if err != nil {
		return
	}
	frame, err := json.Marshal(engine.Envelope{Type: "identified", Data: body})
	if err != nil {
		return
	}
	if err := c.Send(frame); err != nil {
		log.Printf("identify ack failed user=%d err=%v", identity.ID, err)
	}
}

// readLoop decodes command envelopes until the connection dies.
func (g *Gateway) readLoop(ctx context.Context, identity user.User, c *conn) {
	defer func() {
		g.registry.UnregisterConn(c)
		c.Close("read-closed")
		log.Printf("connection closed user=%d", identity.ID)
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("connection read error user=%d err=%v", identity.ID, err)
			}
			return
		}

		var env engine.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			log.Printf("malformed frame user=%d err=%v", identity.ID, err)
			continue
		}
		if rej := g.engine.Handle(ctx, identity, env); rej != nil {
			log.Printf("command rejected user=%d type=%s code=%s", identity.ID, env.Type, rej.Code)
		}
	}
}
