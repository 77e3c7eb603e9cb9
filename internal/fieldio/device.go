package fieldio

import (
	"context"
	"errors"
	"fmt"

	"desalination_plant/internal/control/pumps"
	"desalination_plant/internal/plant"
)

var (
	ErrMissingTag = errors.New("tag not found")
	ErrOffline    = errors.New("field device offline")
)

// Device is the field I/O boundary of the scan.
type Device interface {
	ReadInputs(ctx context.Context) (plant.Inputs, error)
	WriteOutputs(ctx context.Context, out plant.Outputs) error
}

// TagDevice maps plant inputs and outputs onto named tags.
type TagDevice struct {
	tags      Tags
	feedUnits int
	hpUnits   int

	// Online, when set, is consulted before every read and write.
	Online func() bool
}

var _ Device = (*TagDevice)(nil)

func NewTagDevice(tags Tags, feedUnits, hpUnits int) *TagDevice {
	return &TagDevice{tags: tags, feedUnits: feedUnits, hpUnits: hpUnits}
}

func (d *TagDevice) online() bool { return d.Online == nil || d.Online() }

// ReadInputs reads one scan of inputs. A missing tag fails the whole read.
func (d *TagDevice) ReadInputs(ctx context.Context) (plant.Inputs, error) {
	if err := ctx.Err(); err != nil {
		return plant.Inputs{}, err
	}
	if !d.online() {
		return plant.Inputs{}, ErrOffline
	}

	r := tagReader{tags: d.tags}
	in := plant.Inputs{
		MembranePressureBar:      r.analog(TagMembranePressure),
		FeedPressureBar:          r.analog(TagFeedPressure),
		SuctionPressureBar:       r.analog(TagSuctionPressure),
		DifferentialPressureBar:  r.analog(TagDifferentialPressure),
		FeedTemperatureC:         r.analog(TagFeedTemperature),
		TankLevelPct:             r.analog(TagTankLevel),
		PermeateFlowM3h:          r.analog(TagPermeateFlow),
		PermeateConductivityUScm: r.analog(TagPermeateConductivity),
		PH:                       r.analog(TagPH),
		ChlorineMgL:              r.analog(TagChlorine),
		EmergencyStop:            r.digital(TagEmergencyStop),
		FireAlarm:                r.digital(TagFireAlarm),
		LeakDetected:             r.digital(TagLeakDetected),
		CommOK:                   true,
		FeedPumps:                r.pumpFeedback(GroupFeed, d.feedUnits),
		HPPumps:                  r.pumpFeedback(GroupHP, d.hpUnits),
	}
	if r.err != nil {
		return plant.Inputs{}, r.err
	}
	return in, nil
}

// WriteOutputs writes every actuator tag.
func (d *TagDevice) WriteOutputs(ctx context.Context, out plant.Outputs) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.online() {
		return ErrOffline
	}
	d.writePumps(GroupFeed, d.feedUnits, out.FeedPumps)
	d.writePumps(GroupHP, d.hpUnits, out.HPPumps)
	d.tags.Write(TagCleaningPump, boolTag(out.CleaningPump))
	d.tags.Write(TagInletValve, boolTag(out.InletValve))
	d.tags.Write(TagFlushValve, boolTag(out.FlushValve))
	d.tags.Write(TagPermeateToTank, boolTag(out.PermeateToTank))
	d.tags.Write(TagConcentrateValve, out.ConcentrateValvePct)
	d.tags.Write(TagAcidDosing, out.AcidDosingPct)
	d.tags.Write(TagChlorineDosing, out.ChlorineDosingPct)
	return nil
}

func (d *TagDevice) writePumps(group string, n int, cmds []plant.PumpCommand) {
	for i := 0; i < n; i++ {
		var c plant.PumpCommand
		if i < len(cmds) {
			c = cmds[i]
		}
		d.tags.Write(PumpRunTag(group, i+1), boolTag(c.Run))
		d.tags.Write(PumpSpeedTag(group, i+1), c.SpeedPct)
	}
}

// tagReader keeps the first error so that a read can be written as one
// expression.
type tagReader struct {
	tags Tags
	err  error
}

func (r *tagReader) analog(name string) float64 {
	v, ok := r.tags.Read(name)
	if !ok && r.err == nil {
		r.err = fmt.Errorf("read %s: %w", name, ErrMissingTag)
	}
	return v
}

func (r *tagReader) digital(name string) bool { return r.analog(name) >= 0.5 }

func (r *tagReader) pumpFeedback(group string, n int) []pumps.Feedback {
	fb := make([]pumps.Feedback, n)
	for i := range fb {
		u := i + 1
		fb[i] = pumps.Feedback{
			Running:              r.digital(PumpFeedbackTag(group, u)),
			FlowM3h:              r.analog(PumpFlowTag(group, u)),
			DischargePressureBar: r.analog(PumpPressureTag(group, u)),
			CurrentA:             r.analog(PumpCurrentTag(group, u)),
		}
	}
	return fb
}
