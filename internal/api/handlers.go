// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/locale"
	"github.com/gamelinkhq/gamelink/internal/razer"
	"github.com/gamelinkhq/gamelink/internal/tasks"
)

type computerSummary struct {
	Name            string `json:"name"`
	UUID            string `json:"uuid"`
	ComputerState   string `json:"computerState"`
	PairState       string `json:"pairState"`
	Wakeable        bool   `json:"wakeable"`
	StatusUnknown   bool   `json:"statusUnknown"`
	ServerSupported bool   `json:"serverSupported"`
}

func (s *Server) handleComputers(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("computer")

	summaries := make([]computerSummary, 0)
	for _, host := range s.reg.Hosts() {
		host.RLock()
		if filter != "" && !strings.EqualFold(filter, host.UUID) {
			host.RUnlock()
			continue
		}
		summaries = append(summaries, computerSummary{
			Name:            host.Name,
			UUID:            host.UUID,
			ComputerState:   host.State.String(),
			PairState:       host.PairState.String(),
			Wakeable:        host.MACAddress != "",
			StatusUnknown:   host.State == hostdb.StateUnknown,
			ServerSupported: host.SupportedServerVersion,
		})
		host.RUnlock()
	}
	writeJSON(w, http.StatusOK, map[string]any{"computers": summaries})
}

type appView struct {
	Name             string `json:"name"`
	Running          bool   `json:"running"`
	BoxArtURL        string `json:"boxArtUrl"`
	Hidden           bool   `json:"hidden"`
	ID               string `json:"id"`
	DirectLaunch     bool   `json:"directLaunch"`
	AppCollectorGame bool   `json:"appCollectorGame"`
	GamePlatform     string `json:"gamePlatform"`
	GUID             string `json:"guid"`
	LastAppStartTime int64  `json:"lastAppStartTime"`
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	uuid := r.URL.Query().Get("computer")
	if !uuidPattern.MatchString(uuid) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	views := make([]appView, 0)
	host, ok := s.reg.Get(uuid)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"apps": views})
		return
	}

	host.RLock()
	hostUUID := host.UUID
	running := host.CurrentGameID
	ready := host.State == hostdb.StateOnline && host.PairState == hostdb.Paired
	apps := host.VisibleApps()
	host.RUnlock()

	// The list is only served while the host can actually launch from it.
	// A host mid-session stays listable even if a poll flapped it offline.
	if !ready {
		busy := false
		if active, ok := s.sessions.Active(); ok && active.HostUUID == hostUUID {
			busy = true
		}
		if !busy {
			writeJSON(w, http.StatusOK, map[string]any{"apps": views})
			return
		}
	}

	for _, app := range apps {
		views = append(views, appView{
			Name:             app.Name,
			Running:          running == app.ID,
			BoxArtURL:        s.boxArt(host, hostUUID, app),
			Hidden:           app.Hidden,
			ID:               strconv.Itoa(app.ID),
			DirectLaunch:     app.DirectLaunch,
			AppCollectorGame: app.IsAppCollectorGame,
			GamePlatform:     app.GamePlatform,
			GUID:             app.GUID,
			LastAppStartTime: app.LastAppStartTime,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"apps": views})
}

// boxArt resolves the artwork for one app: a server-supplied URL or color
// passes through, a cache hit becomes a data URI, and a miss triggers a
// background fetch so a later reload has it.
func (s *Server) boxArt(host *hostdb.Host, hostUUID string, app hostdb.App) string {
	if app.BoxArt != "" {
		return app.BoxArt
	}
	if uri, ok := s.art.DataURI(hostUUID, app.ID); ok {
		return uri
	}
	s.art.Request(host, app.ID)
	return ""
}

func (s *Server) handleHideApp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Computer string `json:"computer"`
		Hide     bool   `json:"hide"`
		App      string `json:"app"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err)
		return
	}
	appID, err := strconv.Atoi(body.App)
	if err != nil {
		writeError(w, err)
		return
	}

	if host, ok := s.reg.Get(body.Computer); ok {
		host.Lock()
		if app, found := host.FindApp(appID); found {
			app.Hidden = body.Hide
			host.UpdateApp(app)
		}
		host.Unlock()
		s.reg.MarkDirty()
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRazerAvailability(w http.ResponseWriter, r *http.Request) {
	uuid := r.URL.Query().Get("computer")
	if !uuidPattern.MatchString(uuid) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	host, ok := s.reg.Get(uuid)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"available": false,
			"message":   locale.Token(locale.MsgHostNotExist),
		})
		return
	}

	host.RLock()
	mode := host.FederatedPairMode
	pairState := host.PairState
	sameIdentity := host.UseSameIdentity
	host.RUnlock()

	available, message := razer.Availability(mode, pairState, sameIdentity)
	writeJSON(w, http.StatusOK, map[string]any{
		"available": available,
		"message":   locale.Token(message),
	})
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uuid := q.Get("computer")
	jwt := q.Get("useRazerJWT")
	if !uuidPattern.MatchString(uuid) || (jwt != "true" && jwt != "false") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	pin := tasks.GeneratePIN()
	taskID, err := s.tasks.StartPair(uuid, pin, jwt == "true")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"pin": "", "taskid": "", "msg": locale.Token(err.Error()),
		})
		return
	}
	recordTaskStarted(string(tasks.KindPair))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"pin": pin, "taskid": taskID, "msg": "",
	})
}

func (s *Server) handlePairState(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskid")
	if !uuidPattern.MatchString(taskID) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	// Unlike the other state endpoints, an unknown pair task is a client
	// error: the UI only ever polls the id the pair start returned.
	result, ok := s.taskResult(taskID, tasks.KindPair)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse(result))
}

func (s *Server) handleCancelPair(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskid")
	if !uuidPattern.MatchString(taskID) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !s.tasks.CancelPair(taskID) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uuid := q.Get("computer")
	appID, err := strconv.Atoi(q.Get("app"))
	if !uuidPattern.MatchString(uuid) || err != nil || appID < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var message string
	host, ok := s.reg.Get(uuid)
	if !ok {
		message = locale.MsgStreamHostMissing
		s.sessions.Fail(message)
	} else if err := s.sessions.Begin(host, appID); err != nil {
		message = err.Error()
	} else {
		// Begin stamped the app launch time; persist it.
		s.reg.MarkDirty()
	}
	succeeded := message == ""
	recordStreamRequest(succeeded)

	writeJSON(w, http.StatusOK, map[string]any{
		"succeed":     succeeded,
		"errorstring": locale.Token(message),
	})
}

func (s *Server) handleStreamState(w http.ResponseWriter, r *http.Request) {
	last, ok := s.sessions.LastStream()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"completed":   last.Completed,
		"succeed":     last.Succeeded,
		"errorstring": locale.Token(last.Message),
	})
}

func (s *Server) handleAddComputer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err)
		return
	}

	taskID, err := s.tasks.StartAdd(body.IP)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"taskid": "", "msg": locale.Token(err.Error()),
		})
		return
	}
	recordTaskStarted(string(tasks.KindAdd))
	writeJSON(w, http.StatusAccepted, map[string]string{"taskid": taskID, "msg": ""})
}

func (s *Server) handleDeleteComputer(w http.ResponseWriter, r *http.Request) {
	uuid := r.URL.Query().Get("computer")
	if !uuidPattern.MatchString(uuid) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	taskID, err := s.tasks.StartDelete(uuid)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"taskid": "", "msg": locale.Token(err.Error()),
		})
		return
	}
	recordTaskStarted(string(tasks.KindDelete))
	writeJSON(w, http.StatusAccepted, map[string]string{"taskid": taskID, "msg": ""})
}

func (s *Server) handleQuitApp(w http.ResponseWriter, r *http.Request) {
	uuid := r.URL.Query().Get("computer")
	if !uuidPattern.MatchString(uuid) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	taskID, err := s.tasks.StartQuit(uuid)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"taskid": "", "msg": locale.Token(err.Error()),
		})
		return
	}
	recordTaskStarted(string(tasks.KindQuit))
	// The quit start answers 200 rather than 202; the UI treats the quit
	// dialog as open the moment this returns.
	writeJSON(w, http.StatusOK, map[string]string{"taskid": taskID, "msg": ""})
}

// taskStateHandler builds the poll endpoint for one task kind. Unknown or
// mismatched task ids answer 404.
func (s *Server) taskStateHandler(kind tasks.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := r.URL.Query().Get("taskid")
		if !uuidPattern.MatchString(taskID) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		result, ok := s.taskResult(taskID, kind)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, stateResponse(result))
	}
}

func (s *Server) taskResult(taskID string, kind tasks.Kind) (tasks.Result, bool) {
	actual, ok := s.tasks.TaskKind(taskID)
	if !ok || actual != kind {
		return tasks.Result{}, false
	}
	return s.tasks.TaskResult(taskID)
}

func stateResponse(result tasks.Result) map[string]any {
	return map[string]any{
		"completed":   result.Completed,
		"succeed":     result.Succeeded,
		"errorstring": locale.Token(result.Message),
	}
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.All())
}

func (s *Server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	values := make(map[string]any)
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeError(w, err)
		return
	}
	if err := s.settings.Merge(values); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSettingsReset(w http.ResponseWriter, _ *http.Request) {
	if err := s.settings.Reset(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleScreenInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.screenInfo)
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	onlineCount := 0
	firstOnline := ""
	for _, host := range s.reg.Hosts() {
		host.RLock()
		if host.State == hostdb.StateOnline {
			if firstOnline == "" {
				firstOnline = host.Name
			}
			onlineCount++
		}
		host.RUnlock()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"onlineHostNum":     onlineCount,
		"firstOnlineHost":   firstOnline,
		"currentDeviceName": s.deviceName,
		"version":           s.version,
	})
}

func (s *Server) handleRazerJWT(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RazerPairToken string `json:"RazerPairToken"`
		RazerUUID      string `json:"RazerUUID"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err)
		return
	}
	s.tokens.Set(body.RazerPairToken, body.RazerUUID)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleExit(w http.ResponseWriter, _ *http.Request) {
	if s.shutdown == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	// Respond before the daemon starts tearing the listener down.
	w.WriteHeader(http.StatusOK)
	go s.shutdown()
}

func (s *Server) handleAlive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
