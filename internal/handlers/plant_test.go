package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"desalination_plant/internal/models"
	"desalination_plant/internal/plant"
	"desalination_plant/internal/service"
)

func newPlantRouter(p *mockPlant, mon *mockMonitoring) http.Handler {
	return newTestRouter(&service.Service{
		Authorization: &mockAuth{parseID: 7},
		Plant:         p,
		Monitoring:    mon,
	})
}

func TestPlantHandlers_GetStateRequiresAuth(t *testing.T) {
	mon := &mockMonitoring{state: models.PlantState{Step: "PRODUCTION", Process: models.ProcessValues{MembranePressureBar: 55}}}
	r := newPlantRouter(&mockPlant{}, mon)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/plant/state", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, withAuth(httptest.NewRequest(http.MethodGet, "/api/v1/plant/state", nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("state status=%d, body=%s", w.Code, w.Body.String())
	}
	var st models.PlantState
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.Step != "PRODUCTION" || st.Process.MembranePressureBar != 55 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestPlantHandlers_Commands(t *testing.T) {
	for _, cmd := range []plantCommand{cmdStart, cmdStop, cmdClean, cmdReset} {
		t.Run(cmd.name, func(t *testing.T) {
			p := &mockPlant{}
			r := newPlantRouter(p, &mockMonitoring{state: models.PlantState{Step: "IDLE"}})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, withAuth(httptest.NewRequest(http.MethodPost, "/api/v1/plant/"+cmd.name, nil)))
			if w.Code != http.StatusOK {
				t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
			}
			if len(p.calls) != 1 || p.calls[0] != cmd.name {
				t.Fatalf("calls = %v", p.calls)
			}
			var resp struct {
				Status string            `json:"status"`
				State  models.PlantState `json:"state"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Status != cmd.status || resp.State.Step != "IDLE" {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestPlantHandlers_CommandErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"trip latched", fmt.Errorf("%w (LEAK)", service.ErrTripLatched), http.StatusConflict},
		{"clean refused", fmt.Errorf("%w (step IDLE)", service.ErrCleanNotAccepted), http.StatusConflict},
		{"queue full", service.ErrCommandQueueFull, http.StatusServiceUnavailable},
		{"storage", errors.New("disk I/O error"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newPlantRouter(&mockPlant{err: tc.err}, &mockMonitoring{})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, withAuth(httptest.NewRequest(http.MethodPost, "/api/v1/plant/start", nil)))
			if w.Code != tc.want {
				t.Fatalf("status=%d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestPlantHandlers_SetSetpoints(t *testing.T) {
	p := &mockPlant{}
	r := newPlantRouter(p, &mockMonitoring{})

	body := bytes.NewBufferString(`{"membrane_pressure_bar":58,"ph":7.2}`)
	req := withAuth(httptest.NewRequest(http.MethodPost, "/api/v1/plant/setpoints", body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	lp := p.lastPatch
	if lp.MembranePressureBar == nil || *lp.MembranePressureBar != 58 || lp.PH == nil || *lp.PH != 7.2 {
		t.Fatalf("patch = %+v", lp)
	}
	if lp.PermeateFlowM3h != nil || lp.ChlorineMgL != nil {
		t.Fatalf("omitted fields must stay nil: %+v", lp)
	}
}

func TestPlantHandlers_SetSetpointsErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad json", `{"ph":`, nil, http.StatusBadRequest},
		{"out of limits", `{"membrane_pressure_bar":70}`, fmt.Errorf("%w: membrane_pressure_bar", plant.ErrOutOfLimits), http.StatusBadRequest},
		{"empty", `{}`, service.ErrEmptySetpoint, http.StatusBadRequest},
		{"queue full", `{"ph":7}`, service.ErrCommandQueueFull, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newPlantRouter(&mockPlant{err: tc.err}, &mockMonitoring{})
			req := withAuth(httptest.NewRequest(http.MethodPost, "/api/v1/plant/setpoints", bytes.NewBufferString(tc.body)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status=%d, want %d, body=%s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestPlantHandlers_GetPumps(t *testing.T) {
	mon := &mockMonitoring{state: models.PlantState{Pumps: []models.PumpStatus{
		{Group: "feed", ID: 1, Duty: true},
		{Group: "hp", ID: 1},
		{Group: "hp", ID: 2, Duty: true},
	}}}
	r := newPlantRouter(&mockPlant{}, mon)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, withAuth(httptest.NewRequest(http.MethodGet, "/api/v1/plant/pumps?group=hp", nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var out struct {
		Count int                 `json:"count"`
		Pumps []models.PumpStatus `json:"pumps"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Count != 2 || out.Pumps[1].ID != 2 || !out.Pumps[1].Duty {
		t.Fatalf("unexpected pumps: %+v", out)
	}
}

func TestPlantHandlers_GetStateError(t *testing.T) {
	r := newPlantRouter(&mockPlant{}, &mockMonitoring{err: errors.New("db locked")})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, withAuth(httptest.NewRequest(http.MethodGet, "/api/v1/plant/state", nil)))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&service.Service{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(statusOK)) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
}
