package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"rhythmhub/internal/service"
)

// RoomHandler serves read-only views of live rooms
type RoomHandler struct {
	multiSvc *service.MultiplayerService
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(multiSvc *service.MultiplayerService) *RoomHandler {
	return &RoomHandler{multiSvc: multiSvc}
}

// Get handles GET /v1/rooms/{id}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	room, err := h.multiSvc.GetRoom(roomID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// List handles GET /v1/rooms
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.multiSvc.ListRooms())
}
