package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"pinmark/internal/dispatch"
	"pinmark/internal/tabstate"
	"pinmark/internal/utils"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Warnf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// handleMessage answers a UI message. Unrecognized messages get 202 and no
// body; the caller is expected to time out.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	req, err := dispatch.DecodeRequest(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pending, ok := s.deps.Dispatcher.Dispatch(context.WithoutCancel(r.Context()), req)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	resp, err := pending.Wait(r.Context())
	if err != nil {
		// client went away; the handler still completes in the background
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// storageChange is one entry of a host storage-changed event
type storageChange struct {
	OldValue *string `json:"oldValue"`
	NewValue *string `json:"newValue"`
}

type storageChangedEvent struct {
	Changes map[string]storageChange `json:"changes"`
}

// handleStorageChanged applies host-side option edits to the store. The
// store notifies its subscribers of the keys that actually changed.
func (s *Server) handleStorageChanged(w http.ResponseWriter, r *http.Request) {
	var ev storageChangedEvent
	if !decodeBody(w, r, &ev) {
		return
	}

	set := make(map[string]string)
	var removed []string
	for key, change := range ev.Changes {
		if change.NewValue == nil {
			removed = append(removed, key)
			continue
		}
		set[key] = *change.NewValue
	}

	ctx := context.WithoutCancel(r.Context())
	if len(set) > 0 {
		if err := s.deps.Store.Set(ctx, set); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if len(removed) > 0 {
		if err := s.deps.Store.Delete(ctx, removed...); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type tabActivatedEvent struct {
	TabID    int           `json:"tabId"`
	WindowID int           `json:"windowId"`
	Tab      *tabstate.Tab `json:"tab,omitempty"`
}

func (s *Server) handleTabActivated(w http.ResponseWriter, r *http.Request) {
	var ev tabActivatedEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	if ev.Tab != nil {
		if ev.Tab.ID == 0 {
			ev.Tab.ID = ev.TabID
		}
		s.deps.Registry.Upsert(*ev.Tab)
	}
	s.deps.Registry.Activate(ev.WindowID, ev.TabID)
	writeJSON(w, http.StatusOK, s.deps.Tabs.OnTabActivated(context.WithoutCancel(r.Context()), ev.TabID))
}

type tabUpdatedEvent struct {
	TabID      int                 `json:"tabId"`
	ChangeInfo tabstate.ChangeInfo `json:"changeInfo"`
	Tab        tabstate.Tab        `json:"tab"`
}

func (s *Server) handleTabUpdated(w http.ResponseWriter, r *http.Request) {
	var ev tabUpdatedEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	tab := ev.Tab
	if tab.ID == 0 {
		tab.ID = ev.TabID
	}
	if tab.URL == "" {
		tab.URL = ev.ChangeInfo.URL
	}
	s.deps.Registry.Upsert(tab)
	writeJSON(w, http.StatusOK, s.deps.Tabs.OnTabUpdated(context.WithoutCancel(r.Context()), ev.TabID, ev.ChangeInfo, ev.Tab))
}

type tabRemovedEvent struct {
	TabID int `json:"tabId"`
}

func (s *Server) handleTabRemoved(w http.ResponseWriter, r *http.Request) {
	var ev tabRemovedEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	s.deps.Registry.Remove(ev.TabID)
	s.deps.Tabs.Forget(ev.TabID)
	w.WriteHeader(http.StatusNoContent)
}

type windowFocusEvent struct {
	WindowID int `json:"windowId"`
}

func (s *Server) handleWindowFocusChanged(w http.ResponseWriter, r *http.Request) {
	var ev windowFocusEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Tabs.OnWindowFocusChanged(context.WithoutCancel(r.Context()), ev.WindowID))
}

// handleCurrentTab returns the view of the remembered current tab.
func (s *Server) handleCurrentTab(w http.ResponseWriter, r *http.Request) {
	tab := s.deps.Tabs.Current()
	if tab == nil {
		writeError(w, http.StatusNotFound, "no current tab")
		return
	}
	view, ok := s.deps.Board.View(tab.ID)
	if !ok {
		writeError(w, http.StatusNotFound, "no state rendered for tab "+strconv.Itoa(tab.ID))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTabState(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tab id")
		return
	}
	view, ok := s.deps.Board.View(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no state rendered for tab "+strconv.Itoa(id))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
