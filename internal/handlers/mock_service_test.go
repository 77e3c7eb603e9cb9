package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"desalination_plant/internal/models"
	"desalination_plant/internal/service"

	"github.com/gin-gonic/gin"
)

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockPlant struct {
	err       error
	calls     []string
	lastPatch models.SetpointPatch
}

func (m *mockPlant) Start(context.Context) error { m.calls = append(m.calls, "start"); return m.err }
func (m *mockPlant) Stop(context.Context) error  { m.calls = append(m.calls, "stop"); return m.err }
func (m *mockPlant) Clean(context.Context) error { m.calls = append(m.calls, "clean"); return m.err }
func (m *mockPlant) Reset(context.Context) error { m.calls = append(m.calls, "reset"); return m.err }
func (m *mockPlant) SetSetpoints(_ context.Context, p models.SetpointPatch) error {
	m.calls = append(m.calls, "setpoints")
	m.lastPatch = p
	return m.err
}

type mockMonitoring struct {
	mu    sync.Mutex
	state models.PlantState
	err   error
	calls int
}

func (m *mockMonitoring) GetState(context.Context) (models.PlantState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.state, m.err
}

func (m *mockMonitoring) set(st models.PlantState, err error) {
	m.mu.Lock()
	m.state, m.err = st, err
	m.mu.Unlock()
}

type mockEventLog struct {
	resp      []models.PlantEvent
	err       error
	lastFrom  time.Time
	lastTo    time.Time
	lastType  string
	lastLimit int
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.PlantEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastLimit = f.Limit
	return m.resp, m.err
}

func newTestRouter(s *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewHandler(s, nil).InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func withAuth(req *http.Request) *http.Request {
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	return req
}
