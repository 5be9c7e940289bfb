package drive

import "github.com/KevinKickass/OpenMotionCore/internal/image"

// Controller runs the pass-through policy on every axis: each target follows
// the actual value read in the same cycle, the controlword is left untouched.
// Raw device units, no scaling.
type Controller struct {
	axes []*Axis
}

func NewController(axes []*Axis) *Controller {
	return &Controller{axes: axes}
}

// Step is called once per cycle between receive and send. It must not block or allocate.
func (c *Controller) Step(img *image.Image) {
	for _, a := range c.axes {
		sw := a.statusword.Read(img)
		cw := a.controlword.Read(img)
		pos := a.actualPosition.Read(img)
		vel := a.actualVelocity.Read(img)
		torque := a.actualTorque.Read(img)

		a.targetPosition.Write(img, pos)
		a.targetVelocity.Write(img, vel)
		a.targetTorque.Write(img, torque)

		a.state.publish(sw, cw, pos, pos, vel, vel, torque, torque)
	}
}

func (c *Controller) Axes() []*Axis {
	return c.axes
}

// States copies the published state of every axis.
func (c *Controller) States() []AxisState {
	out := make([]AxisState, len(c.axes))
	for i, a := range c.axes {
		out[i] = a.State()
	}
	return out
}
