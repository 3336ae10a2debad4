package optim

// Scheduler computes the learning rate for an epoch.
type Scheduler interface {
	LR(epoch int) float32
}

// Constant keeps the learning rate fixed.
type Constant float32

// LR returns the constant rate.
func (c Constant) LR(int) float32 {
	return float32(c)
}

// InverseTimeDecay decays the rate as InitialLR / (1 + Decay*epoch).
type InverseTimeDecay struct {
	InitialLR float64
	Decay     float64
}

// LR returns the decayed rate for epoch.
func (s InverseTimeDecay) LR(epoch int) float32 {
	return float32(s.InitialLR / (1.0 + s.Decay*float64(epoch)))
}

// ApplySchedule sets the optimizer's rate for epoch and returns it.
func ApplySchedule(opt Optimizer, s Scheduler, epoch int) float32 {
	lr := s.LR(epoch)
	opt.SetLR(lr)
	return lr
}
