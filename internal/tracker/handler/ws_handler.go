package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dispatch/internal/contracts"
	"dispatch/internal/domain/user"
	"dispatch/internal/jwt"
	"dispatch/internal/ports"
	"dispatch/internal/realtime"
	"dispatch/internal/tracker/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsAuthWindow   = 10 * time.Second
	wsReadDeadline = 60 * time.Second
	wsPingPeriod   = 30 * time.Second
	wsMaxFrameSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// auth happens in-band on the first frame, origins are not restricted here
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientMessage is the envelope for everything a client sends after auth.
type clientMessage struct {
	Type       string     `json:"type"`
	JobID      string     `json:"job_id,omitempty"`
	Lat        float64    `json:"lat,omitempty"`
	Lng        float64    `json:"lng,omitempty"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// handleWS upgrades the connection, authenticates the first frame, and runs
// the read loop until the client goes away.
func (handler *TrackerHTTPHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.logger.Error(ctx, "ws_upgrade_failed", "Failed to upgrade connection", err, nil)
		return
	}
	defer sock.Close()
	sock.SetReadLimit(wsMaxFrameSize)

	// the very first frame must be {"type":"auth","token":"Bearer <jwt>"}
	_ = sock.SetReadDeadline(time.Now().Add(wsAuthWindow))
	_, frame, err := sock.ReadMessage()
	if err != nil {
		return
	}

	res, err := jwt.ValidateWSAuth(frame, handler.auth,
		user.RoleCustomer, user.RoleDriver, user.RoleOperator, user.RoleAdmin)
	if err != nil {
		_ = sock.WriteJSON(map[string]string{"type": "auth_error", "error": err.Error()})
		_ = sock.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
			time.Now().Add(2*time.Second))
		return
	}
	claims := res.Claims

	conn := realtime.NewConn(uuid.NewString(), claims.Subject, claims.Role, sock)
	hub := handler.svc.Hub()
	hub.Register(conn)
	defer hub.Unregister(conn.ID)

	_ = conn.WriteJSON(map[string]any{
		"type":    "auth_success",
		"user_id": claims.Subject,
		"role":    claims.Role.String(),
	})

	handler.logger.Info(ctx, "ws_connected", "WebSocket client authenticated", map[string]any{
		"conn_id": conn.ID,
		"user_id": claims.Subject,
		"role":    claims.Role.String(),
	})

	// drivers and fleet operators get a presence session; its grace window
	// absorbs reconnects so a network flap never reads as going offline
	if claims.Role.IsDriver() || claims.Role.IsOperator() {
		handler.svc.ConnectContractor(ctx, claims.Subject, conn.ID)
		defer handler.svc.HandleDisconnect(ctx, claims.Subject, conn.ID)
	}

	switch {
	case claims.Role.IsAdmin():
		handler.joinAdminRoom(ctx, conn)
	case claims.Role.IsOperator():
		handler.joinOperatorRooms(ctx, conn, claims.Subject)
	}

	// keepalive pings; the pong handler below extends the read deadline
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go handler.pingLoop(pingCtx, conn)

	_ = sock.SetReadDeadline(time.Now().Add(wsReadDeadline))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})

	handler.readLoop(ctx, conn, claims)
}

func (handler *TrackerHTTPHandler) pingLoop(ctx context.Context, conn *realtime.Conn) {
	t := time.NewTicker(wsPingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.Ping(); err != nil {
				return
			}
		}
	}
}

func (handler *TrackerHTTPHandler) readLoop(ctx context.Context, conn *realtime.Conn, claims *jwt.Claims) {
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				handler.logger.Debug(ctx, "ws_read_failed", "WebSocket read ended", map[string]any{
					"conn_id": conn.ID, "error": err.Error(),
				})
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			handler.handleSubscribe(ctx, conn, claims, msg.JobID)
		case "unsubscribe":
			if msg.JobID != "" {
				handler.svc.Hub().Leave(conn.ID, contracts.JobRoom(msg.JobID))
			}
		case "location_update":
			handler.handleWSLocation(ctx, conn, claims, msg)
		case "online":
			handler.handleWSToggle(ctx, conn, claims, true)
		case "offline":
			handler.handleWSToggle(ctx, conn, claims, false)
		default:
			_ = conn.WriteJSON(map[string]string{"type": "error", "error": "unknown message type"})
		}
	}
}

// handleSubscribe joins the job room after checking the client is a party to
// the job, then sends the ack and a state snapshot.
func (handler *TrackerHTTPHandler) handleSubscribe(ctx context.Context, conn *realtime.Conn, claims *jwt.Claims, jobID string) {
	if jobID == "" {
		_ = conn.WriteJSON(map[string]string{"type": "error", "error": "job_id is required"})
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	view, err := handler.svc.JobSnapshot(opCtx, jobID)
	cancel()
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			_ = conn.WriteJSON(map[string]string{"type": "error", "error": "job does not exist"})
			return
		}
		_ = conn.WriteJSON(map[string]string{"type": "error", "error": "failed to load job"})
		return
	}

	if !partyToJob(claims, view) {
		_ = conn.WriteJSON(map[string]string{"type": "error", "error": "not a party to this job"})
		return
	}

	room := contracts.JobRoom(jobID)
	handler.svc.Hub().Join(conn.ID, room)

	_ = conn.WriteJSON(contracts.WSJoined{Type: contracts.WSEventJoined, Room: room})
	_ = conn.WriteJSON(contracts.WSSnapshot{Type: contracts.WSEventSnapshot, Room: room, Payload: view})
}

func (handler *TrackerHTTPHandler) joinAdminRoom(ctx context.Context, conn *realtime.Conn) {
	handler.svc.Hub().Join(conn.ID, contracts.RoomAdmin)
	_ = conn.WriteJSON(contracts.WSJoined{Type: contracts.WSEventJoined, Room: contracts.RoomAdmin})

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := handler.svc.AdminSnapshot(opCtx)
	if err != nil {
		handler.logger.Error(ctx, "ws_admin_snapshot_failed", "Failed to load admin snapshot", err, nil)
		return
	}
	_ = conn.WriteJSON(contracts.WSSnapshot{Type: contracts.WSEventSnapshot, Room: contracts.RoomAdmin, Payload: rows})
}

// joinOperatorRooms puts a connecting fleet operator on the admin board and
// in the room of every live job under their fleet, each with its snapshot.
func (handler *TrackerHTTPHandler) joinOperatorRooms(ctx context.Context, conn *realtime.Conn, operatorID string) {
	handler.joinAdminRoom(ctx, conn)

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	views, err := handler.svc.FleetJobs(opCtx, operatorID)
	cancel()
	if err != nil {
		handler.logger.Error(ctx, "ws_fleet_join_failed", "Failed to load fleet jobs for operator", err, map[string]any{
			"operator_id": operatorID,
		})
		return
	}

	hub := handler.svc.Hub()
	for _, view := range views {
		room := contracts.JobRoom(view.JobID)
		hub.Join(conn.ID, room)
		_ = conn.WriteJSON(contracts.WSJoined{Type: contracts.WSEventJoined, Room: room})
		_ = conn.WriteJSON(contracts.WSSnapshot{Type: contracts.WSEventSnapshot, Room: room, Payload: view})
	}
}

func (handler *TrackerHTTPHandler) handleWSLocation(ctx context.Context, conn *realtime.Conn, claims *jwt.Claims, msg clientMessage) {
	if !claims.Role.IsDriver() && !claims.Role.IsOperator() {
		_ = conn.WriteJSON(map[string]string{"type": "error", "error": "only contractors report locations"})
		return
	}

	in := ports.ReportLocationInput{
		ContractorID: claims.Subject,
		Lat:          msg.Lat,
		Lng:          msg.Lng,
	}
	if msg.RecordedAt != nil {
		in.RecordedAt = *msg.RecordedAt
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.ReportLocation(opCtx, in)
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"type": "error", "error": err.Error()})
		return
	}
	_ = conn.WriteJSON(map[string]any{"type": "location_ack", "applied": res.Applied})
}

func (handler *TrackerHTTPHandler) handleWSToggle(ctx context.Context, conn *realtime.Conn, claims *jwt.Claims, online bool) {
	if !claims.Role.IsDriver() && !claims.Role.IsOperator() {
		_ = conn.WriteJSON(map[string]string{"type": "error", "error": "only contractors toggle presence"})
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := handler.svc.ToggleOnline(opCtx, ports.ToggleOnlineInput{
		ContractorID: claims.Subject,
		Online:       online,
	}); err != nil {
		_ = conn.WriteJSON(map[string]string{"type": "error", "error": err.Error()})
		return
	}
	_ = conn.WriteJSON(map[string]any{"type": "presence_ack", "online": online})
}

// partyToJob reports whether the authenticated client may watch this job.
func partyToJob(claims *jwt.Claims, view ports.JobView) bool {
	switch {
	case claims.Role.IsAdmin():
		return true
	case claims.Role.IsCustomer():
		return view.CustomerID == claims.Subject
	case claims.Role.IsDriver():
		return view.DriverID == claims.Subject
	case claims.Role.IsOperator():
		return view.OperatorID == claims.Subject || view.DriverID == claims.Subject
	default:
		return false
	}
}
