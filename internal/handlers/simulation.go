package handlers

import (
	"errors"
	"net/http"

	"desalination_plant/internal/fieldio"

	"github.com/gin-gonic/gin"
)

// FaultInjector drives faults into the process simulator.
type FaultInjector interface {
	Faults() fieldio.Faults
	Inject(f fieldio.Faults) error
}

// WithSimulator enables the /api/v1/sim routes. Call before InitRoutes.
func (h *Handler) WithSimulator(sim FaultInjector) *Handler {
	h.sim = sim
	return h
}

func (h *Handler) registerSimRoutes(api *gin.RouterGroup) {
	if h.sim == nil {
		return
	}
	sim := api.Group("/sim")
	{
		sim.GET("/faults", h.getFaults)
		// Body example: {"leak":true,"failed_sensor":"AT_PH"}
		sim.PUT("/faults", h.putFaults)
	}
}

// @Summary      Active simulator faults
// @Tags         simulation
// @Produce      json
// @Success      200  {object}  fieldio.Faults
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/sim/faults [get]
// @Security     BearerAuth
func (h *Handler) getFaults(c *gin.Context) {
	c.JSON(http.StatusOK, h.sim.Faults())
}

// @Summary      Replace simulator faults
// @Description  Only registered when the plant runs against the simulator. An empty object clears every fault.
// @Tags         simulation
// @Accept       json
// @Produce      json
// @Param        body  body   fieldio.Faults  true  "Fault set"
// @Success      200   {object}  fieldio.Faults
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/sim/faults [put]
// @Security     BearerAuth
func (h *Handler) putFaults(c *gin.Context) {
	var f fieldio.Faults
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.sim.Inject(f); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, fieldio.ErrInvalidFault) {
			code = http.StatusBadRequest
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	if h.log != nil {
		uid, _ := c.Get(userCtx)
		h.log.Warnw("sim_faults_injected", "user_id", uid, "faults", f)
	}
	c.JSON(http.StatusOK, h.sim.Faults())
}
