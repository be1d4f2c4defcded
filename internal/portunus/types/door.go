package types

// Default pulse-width bounds in seconds, used when a door configuration
// omits them.
const (
	DefaultMinPulse = 0.0005
	DefaultMaxPulse = 0.0025
)

// DoorConfig is the hardware configuration of a single door servo.
// MinAngle is the logical open angle, MaxAngle the logical closed angle.
//
// DoorConfig is comparable; a changed configuration is a new value.
type DoorConfig struct {
	Name     string
	Pin      int
	MinAngle float64
	MaxAngle float64
	MinPulse float64
	MaxPulse float64
}

func (c DoorConfig) OpenAngle() float64  { return c.MinAngle }
func (c DoorConfig) CloseAngle() float64 { return c.MaxAngle }

// DoorStatus is the read-only view of a live door exposed by the agent's
// status endpoint.
type DoorStatus struct {
	Name       string  `json:"name"`
	Pin        int     `json:"pin"`
	OpenAngle  float64 `json:"open_angle"`
	CloseAngle float64 `json:"close_angle"`
}
