package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"rhythmhub/internal/model"
	"rhythmhub/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// Invocation is the client-to-server WebSocket envelope format
type Invocation struct {
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply answers a single invocation
type Reply struct {
	ID     int64           `json:"id"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Handler handles WebSocket hub connections
type Handler struct {
	hub      *Hub
	authSvc  *service.AuthService
	connSvc  *service.ConnectionService
	multiSvc *service.MultiplayerService
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, authSvc *service.AuthService, connSvc *service.ConnectionService, multiSvc *service.MultiplayerService) *Handler {
	return &Handler{
		hub:      hub,
		authSvc:  authSvc,
		connSvc:  connSvc,
		multiSvc: multiSvc,
	}
}

// HubWS handles GET /v1/ws/hubs/{hub}
func (h *Handler) HubWS(w http.ResponseWriter, r *http.Request) {
	kind := service.HubKind(mux.Vars(r)["hub"])
	switch kind {
	case service.HubMultiplayer, service.HubSpectator, service.HubMetadata:
	default:
		http.Error(w, "unknown hub", http.StatusNotFound)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authSvc.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	conn := &Connection{
		ID:      uuid.New().String(),
		UserID:  claims.UserID,
		TokenID: claims.ID,
		Kind:    kind,
		Send:    make(chan []byte, 256),
		Hub:     h.hub,
	}

	h.hub.Register(conn)

	if err := h.connSvc.Connected(conn.UserID, conn.TokenID, kind, conn.ID); err != nil {
		log.Printf("failed to register connection for user %d: %v", conn.UserID, err)
		h.hub.Unregister(conn)
		wsConn.Close()
		return
	}

	log.Printf("user %d connected to %s hub via WebSocket", claims.UserID, kind)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.cleanup(conn)
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var inv Invocation
		if err := json.Unmarshal(data, &inv); err != nil {
			h.reply(conn, &Reply{Error: "malformed invocation"})
			continue
		}

		result, err := h.dispatch(context.Background(), conn, &inv)
		reply := &Reply{ID: inv.ID}
		if err != nil {
			reply.Error = err.Error()
		} else if result != nil {
			reply.Result, _ = json.Marshal(result)
		}
		h.reply(conn, reply)
	}
}

// cleanup tears down server-side state when a connection that is still
// the current one for its hub goes away.
func (h *Handler) cleanup(conn *Connection) {
	if err := h.connSvc.Verify(conn.UserID, conn.TokenID, conn.Kind, conn.ID); err != nil {
		// A superseded or replaced connection going away must not tear
		// down the active instance.
		return
	}

	destroyed, err := h.connSvc.Disconnected(conn.UserID, conn.TokenID)
	if err != nil {
		log.Printf("failed to untrack connection for user %d: %v", conn.UserID, err)
		return
	}
	if destroyed {
		if err := h.multiSvc.HandleDisconnect(context.Background(), conn.UserID); err != nil {
			log.Printf("failed to clean up room membership for user %d: %v", conn.UserID, err)
		}
	}
}

func (h *Handler) reply(conn *Connection, reply *Reply) {
	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	select {
	case conn.Send <- data:
	default:
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *Connection, inv *Invocation) (any, error) {
	if err := h.connSvc.Verify(conn.UserID, conn.TokenID, conn.Kind, conn.ID); err != nil {
		return nil, err
	}
	if conn.Kind != service.HubMultiplayer {
		return nil, service.ErrInvalidState
	}

	userID := conn.UserID
	switch inv.Method {
	case "join_room":
		var p struct {
			RoomID   int64  `json:"roomId"`
			Password string `json:"password"`
		}
		if err := json.Unmarshal(inv.Payload, &p); err != nil {
			return nil, err
		}
		return h.multiSvc.JoinRoom(ctx, userID, p.RoomID, p.Password)

	case "leave_room":
		return nil, h.multiSvc.LeaveRoom(ctx, userID)

	case "change_state":
		var p struct {
			State model.UserState `json:"state"`
		}
		if err := json.Unmarshal(inv.Payload, &p); err != nil {
			return nil, err
		}
		return nil, h.multiSvc.ChangeState(ctx, userID, p.State)

	case "change_settings":
		var settings model.RoomSettings
		if err := json.Unmarshal(inv.Payload, &settings); err != nil {
			return nil, err
		}
		return nil, h.multiSvc.ChangeSettings(ctx, userID, settings)

	case "change_user_mods":
		var p struct {
			Mods []model.Mod `json:"mods"`
		}
		if err := json.Unmarshal(inv.Payload, &p); err != nil {
			return nil, err
		}
		return nil, h.multiSvc.ChangeUserMods(ctx, userID, p.Mods)

	case "change_beatmap_availability":
		var p struct {
			Availability model.BeatmapAvailability `json:"beatmapAvailability"`
		}
		if err := json.Unmarshal(inv.Payload, &p); err != nil {
			return nil, err
		}
		return nil, h.multiSvc.ChangeBeatmapAvailability(ctx, userID, p.Availability)

	case "send_match_request":
		var req model.MatchRequest
		if err := json.Unmarshal(inv.Payload, &req); err != nil {
			return nil, err
		}
		return nil, h.multiSvc.SendMatchRequest(ctx, userID, &req)

	case "start_match":
		return nil, h.multiSvc.StartMatch(ctx, userID)

	case "abort_gameplay":
		return nil, h.multiSvc.AbortGameplay(ctx, userID)

	case "transfer_host":
		var p struct {
			UserID int64 `json:"userId"`
		}
		if err := json.Unmarshal(inv.Payload, &p); err != nil {
			return nil, err
		}
		return nil, h.multiSvc.TransferHost(ctx, userID, p.UserID)

	case "kick_user":
		var p struct {
			UserID int64 `json:"userId"`
		}
		if err := json.Unmarshal(inv.Payload, &p); err != nil {
			return nil, err
		}
		return nil, h.multiSvc.KickUser(ctx, userID, p.UserID)

	case "add_playlist_item":
		var item model.PlaylistItem
		if err := json.Unmarshal(inv.Payload, &item); err != nil {
			return nil, err
		}
		return nil, h.multiSvc.AddPlaylistItem(ctx, userID, &item)

	case "edit_playlist_item":
		var item model.PlaylistItem
		if err := json.Unmarshal(inv.Payload, &item); err != nil {
			return nil, err
		}
		return nil, h.multiSvc.EditPlaylistItem(ctx, userID, &item)

	case "remove_playlist_item":
		var p struct {
			ItemID int64 `json:"itemId"`
		}
		if err := json.Unmarshal(inv.Payload, &p); err != nil {
			return nil, err
		}
		return nil, h.multiSvc.RemovePlaylistItem(ctx, userID, p.ItemID)

	case "invite_player":
		var p struct {
			UserID int64 `json:"userId"`
		}
		if err := json.Unmarshal(inv.Payload, &p); err != nil {
			return nil, err
		}
		return nil, h.multiSvc.InvitePlayer(ctx, userID, p.UserID)

	default:
		return nil, service.ErrUnknownMethod
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
