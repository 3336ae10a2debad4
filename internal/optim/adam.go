package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam[B tensor.Backend] struct {
	params []*nn.Parameter[B]
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int                  // Timestep for bias correction
	m      []*tensor.RawTensor // First moment estimates, indexed like params
	v      []*tensor.RawTensor // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer. Zero config fields take the
// defaults LR=0.001, Betas=[0.9, 0.999], Eps=1e-8.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, _ B) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	a := &Adam[B]{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make([]*tensor.RawTensor, len(params)),
		v:      make([]*tensor.RawTensor, len(params)),
	}
	for i, p := range params {
		a.m[i] = tensor.MustNewRaw(p.Shape(), tensor.Float32, tensor.CPU)
		a.v[i] = tensor.MustNewRaw(p.Shape(), tensor.Float32, tensor.CPU)
	}
	return a
}

// Step performs a single optimization step. Parameters with no gradient
// are skipped.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++

	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for i, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		mData := a.m[i].AsFloat32()
		vData := a.v[i].AsFloat32()
		paramData := param.Tensor().Data()
		for j, g := range grad {
			mData[j] = a.beta1*mData[j] + (1.0-a.beta1)*g
			vData[j] = a.beta2*vData[j] + (1.0-a.beta2)*g*g
			mHat := mData[j] / biasCorrection1
			vHat := vData[j] / biasCorrection2
			paramData[j] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam[B]) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam[B]) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the number of steps taken.
func (a *Adam[B]) GetTimestep() int {
	return a.t
}

// Name returns "Adam".
func (a *Adam[B]) Name() string {
	return "Adam"
}

// StateDict exports the moment buffers and the timestep.
//
// State keys: "step", "m.{param_index}", "v.{param_index}".
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, 2*len(a.params)+1)
	stateDict["step"] = scalarRaw(float32(a.t))
	for i := range a.params {
		stateDict[stateKey("m", i)] = a.m[i]
		stateDict[stateKey("v", i)] = a.v[i]
	}
	return stateDict
}

// LoadStateDict restores buffers written by StateDict.
func (a *Adam[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	step, ok := stateDict["step"]
	if !ok || step.NumElements() != 1 || step.DType() != tensor.Float32 {
		return fmt.Errorf("%w: missing or malformed \"step\"", ErrOptimizerState)
	}
	for i := range a.params {
		if err := loadBuffer(stateDict, stateKey("m", i), a.m[i]); err != nil {
			return err
		}
		if err := loadBuffer(stateDict, stateKey("v", i), a.v[i]); err != nil {
			return err
		}
	}
	a.t = int(step.AsFloat32()[0])
	return nil
}
