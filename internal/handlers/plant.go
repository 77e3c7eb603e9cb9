package handlers

import (
	"errors"
	"net/http"

	"desalination_plant/internal/models"
	"desalination_plant/internal/plant"
	"desalination_plant/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK          = "ok"
	statusSetpointSet = "setpoints_set"

	errGetState        = "failed to load state"
	errInvalidBodyPref = "invalid body: "
)

type plantCommand struct {
	name   string
	status string
	run    func(service.Plant, *gin.Context) error
}

var (
	cmdStart = plantCommand{"start", "start_requested", func(p service.Plant, c *gin.Context) error {
		return p.Start(c.Request.Context())
	}}
	cmdStop = plantCommand{"stop", "stop_requested", func(p service.Plant, c *gin.Context) error {
		return p.Stop(c.Request.Context())
	}}
	cmdClean = plantCommand{"clean", "clean_requested", func(p service.Plant, c *gin.Context) error {
		return p.Clean(c.Request.Context())
	}}
	cmdReset = plantCommand{"reset", "reset_requested", func(p service.Plant, c *gin.Context) error {
		return p.Reset(c.Request.Context())
	}}
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// commandStatus maps service errors to HTTP codes.
func commandStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrTripLatched), errors.Is(err, service.ErrCleanNotAccepted):
		return http.StatusConflict
	case errors.Is(err, service.ErrCommandQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrEmptySetpoint), errors.Is(err, plant.ErrOutOfLimits):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Respond with a status and include the current state if available.
func (h *Handler) respondWithStatusAndState(c *gin.Context, status string) {
	resp := gin.H{"status": status}
	if st, err := h.services.Monitoring.GetState(c.Request.Context()); err == nil {
		resp["state"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// SetpointsRequest is the setpoints payload; omitted fields keep their value.
type SetpointsRequest struct {
	MembranePressureBar *float64 `json:"membrane_pressure_bar,omitempty" example:"58"`
	PermeateFlowM3h     *float64 `json:"permeate_flow_m3h,omitempty" example:"40"`
	PH                  *float64 `json:"ph,omitempty" example:"7.2"`
	ChlorineMgL         *float64 `json:"chlorine_mg_l,omitempty" example:"0.5"`
}

func (r SetpointsRequest) patch() models.SetpointPatch {
	return models.SetpointPatch{
		MembranePressureBar: r.MembranePressureBar,
		PermeateFlowM3h:     r.PermeateFlowM3h,
		PH:                  r.PH,
		ChlorineMgL:         r.ChlorineMgL,
	}
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// command returns the handler for one operator command. The response
// carries the state of the last scan; the command takes effect on the next.
//
// @Summary      Operator command
// @Description  start, stop, clean or reset. start is refused with 409 while a trip is latched, clean outside PRODUCTION or STANDBY.
// @Tags         plant
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/plant/start [post]
// @Router       /api/v1/plant/stop [post]
// @Router       /api/v1/plant/clean [post]
// @Router       /api/v1/plant/reset [post]
// @Security     BearerAuth
func (h *Handler) command(cmd plantCommand) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cmd.run(h.services.Plant, c); err != nil {
			code := commandStatus(err)
			if h.log != nil {
				h.log.Warnw("plant_command_failed", "command", cmd.name, "err", err)
			}
			c.JSON(code, gin.H{"error": err.Error()})
			return
		}
		if h.log != nil {
			uid, _ := c.Get(userCtx)
			h.log.Infow("plant_command", "command", cmd.name, "user_id", uid)
		}
		h.respondWithStatusAndState(c, cmd.status)
	}
}

// @Summary      Change setpoints
// @Description  Values outside the operator limits are rejected.
// @Tags         plant
// @Accept       json
// @Produce      json
// @Param        body  body   SetpointsRequest  true  "Setpoints"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/plant/setpoints [post]
// @Security     BearerAuth
func (h *Handler) setSetpoints(c *gin.Context) {
	var req SetpointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Plant.SetSetpoints(c.Request.Context(), req.patch()); err != nil {
		if h.log != nil {
			h.log.Warnw("plant_setpoints_failed", "err", err)
		}
		c.JSON(commandStatus(err), gin.H{"error": err.Error()})
		return
	}
	h.respondWithStatusAndState(c, statusSetpointSet)
}

// @Summary      Get plant state
// @Tags         plant
// @Produce      json
// @Success      200  {object}  models.PlantState
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/plant/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	st, err := h.services.Monitoring.GetState(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "plant_get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Get pump units
// @Tags         plant
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, pumps"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/plant/pumps [get]
// @Security     BearerAuth
func (h *Handler) getPumps(c *gin.Context) {
	st, err := h.services.Monitoring.GetState(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "plant_get_pumps_failed", err)
		return
	}
	group := c.Query("group")
	out := make([]models.PumpStatus, 0, len(st.Pumps))
	for _, p := range st.Pumps {
		if group == "" || p.Group == group {
			out = append(out, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "pumps": out})
}
