package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"nlquery-app/pkg/dispatch"
	"nlquery-app/pkg/panel"
	"nlquery-app/pkg/rbac"
	"nlquery-app/pkg/settings"
)

type askRequest struct {
	Question string `json:"question"`
	Query    string `json:"query,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	APIURL   string `json:"apiUrl,omitempty"`
}

var errForeignAPIURL = errors.New("apiUrl must match the configured provider URL")

// credentials returns the caller's own key, if any. Requests always go to the
// configured provider; a caller apiUrl naming anything else is rejected.
func (a askRequest) credentials(s *settings.Settings) (dispatch.Credentials, bool, error) {
	if strings.TrimSpace(a.APIKey) == "" {
		return dispatch.Credentials{}, false, nil
	}
	url := providerEndpoint(s.APIURL)
	if a.APIURL != "" && strings.TrimSpace(a.APIURL) != url {
		return dispatch.Credentials{}, false, errForeignAPIURL
	}
	return dispatch.Credentials{APIKey: a.APIKey, APIURL: url}, true, nil
}

func rejectInput(w http.ResponseWriter, err error) {
	writeResult(w, dispatch.Result{Status: dispatch.StatusError, Data: err.Error(), Reason: dispatch.ReasonInvalidInput})
}

func (p *Plugin) decodeAsk(w http.ResponseWriter, r *http.Request) (askRequest, *settings.Settings, bool) {
	var req askRequest
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return req, nil, false
	}
	if !p.authorize(w, r, rbac.ActionAsk) {
		return req, nil, false
	}
	if !p.allow(w, r) {
		return req, nil, false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return req, nil, false
	}
	s, err := p.store.Get(r.Context())
	if err != nil {
		p.logger.Error("Failed to load settings", "error", err)
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return req, nil, false
	}
	return req, s, true
}

func (p *Plugin) handleAskQuery(w http.ResponseWriter, r *http.Request) {
	req, s, ok := p.decodeAsk(w, r)
	if !ok {
		return
	}

	creds, direct, err := req.credentials(s)
	if err != nil {
		rejectInput(w, err)
		return
	}

	in := s.Input(req.Question)
	var res dispatch.Result
	if direct {
		res = p.dispatcher.AskGPTForAQuery(r.Context(), creds, in)
	} else {
		res = p.dispatcher.AskBackendForAQuery(r.Context(), in)
	}
	writeResult(w, res)
}

func (p *Plugin) handleAskPanelOptions(w http.ResponseWriter, r *http.Request) {
	req, s, ok := p.decodeAsk(w, r)
	if !ok {
		return
	}

	creds, direct, err := req.credentials(s)
	if err != nil {
		rejectInput(w, err)
		return
	}

	in := s.Input(req.Question)
	var res dispatch.Result
	if direct {
		res = p.dispatcher.AskGPTForPanelOptions(r.Context(), creds, in, req.Query)
	} else {
		res = p.dispatcher.AskBackendForPanelOptions(r.Context(), in, req.Query)
	}
	writeResult(w, res)
}

// writeResult always answers with the Result envelope. Only rejected input
// changes the status code; every other failure is carried in the body.
func writeResult(w http.ResponseWriter, res dispatch.Result) {
	status := http.StatusOK
	if res.Reason == dispatch.ReasonInvalidInput {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, res)
}

type panelRequest struct {
	Query   string          `json:"query"`
	Kind    string          `json:"kind"`
	Options json.RawMessage `json:"options,omitempty"`
}

func (p *Plugin) handlePanel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !p.authorize(w, r, rbac.ActionBuildPanel) {
		return
	}

	var req panelRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	var kind panel.Kind
	if req.Kind != "" {
		k, err := panel.ParseKind(req.Kind)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kind = k
	}

	var opts *panel.Options
	if raw := strings.TrimSpace(string(req.Options)); raw != "" && raw != "null" {
		o, err := panel.Decode(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		opts = o
	}

	s, err := p.store.Get(r.Context())
	if err != nil {
		p.logger.Error("Failed to load settings", "error", err)
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}

	pnl, err := panel.Build(panel.BuildRequest{
		Query:         req.Query,
		DatasourceUID: s.Datasource,
		Kind:          kind,
		Options:       opts,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.logger.Debug("Built panel", "type", pnl.Type, "datasource", s.Datasource)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"panel":     pnl,
		"timeRange": panel.DefaultTimeRange,
	})
}

func (p *Plugin) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !p.authorize(w, r, rbac.ActionReadSettings) {
		return
	}
	s, err := p.store.Get(r.Context())
	if err != nil {
		p.logger.Error("Failed to load settings", "error", err)
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type validationResponse struct {
	Valid        bool     `json:"valid"`
	Errors       []string `json:"errors"`
	Tables       int      `json:"tables"`
	Fields       int      `json:"fields"`
	Explanations int      `json:"explanations"`
}

// handleValidateSettings checks the JSON-encoded grounding strings the config
// page is about to save.
func (p *Plugin) handleValidateSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !p.authorize(w, r, rbac.ActionValidateSettings) {
		return
	}

	var raw settings.JSONData
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&raw); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	resp := validationResponse{Errors: []string{}}
	s, err := settings.FromJSONData(raw)
	if err == nil {
		resp.Tables = len(s.Model.Tables)
		resp.Fields = len(s.Schema.Fields)
		resp.Explanations = len(s.Context.Context)
		err = s.Validate()
	}
	if err != nil {
		resp.Errors = strings.Split(err.Error(), "\n")
	}
	resp.Valid = len(resp.Errors) == 0

	writeJSON(w, http.StatusOK, resp)
}
