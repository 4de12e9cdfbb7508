// Package device picks the accelerator used for inference. The choice is
// made once at startup and stays fixed for the process lifetime.
package device

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Kind identifies an accelerator family.
type Kind string

const (
	KindMPS  Kind = "mps"
	KindCUDA Kind = "cuda"
	KindROCm Kind = "rocm"
	KindCPU  Kind = "cpu"
)

// Precision is the floating point width used for weights and activations.
type Precision string

const (
	FP16 Precision = "fp16"
	FP32 Precision = "fp32"
)

// Device is the selected compute target.
type Device struct {
	Kind      Kind
	Precision Precision
}

// Accelerated reports whether the device is anything other than the CPU.
func (d Device) Accelerated() bool { return d.Kind != KindCPU }

func (d Device) String() string { return string(d.Kind) + "/" + string(d.Precision) }

// Probe reports accelerator availability. Fields left nil count as unavailable.
type Probe struct {
	MPS  func() bool
	CUDA func() bool
	ROCm func() bool
}

// SystemProbe inspects the running host.
func SystemProbe() Probe {
	return Probe{
		MPS: func() bool { return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" },
		CUDA: func() bool {
			if _, err := os.Stat("/proc/driver/nvidia/version"); err == nil {
				return true
			}
			_, err := exec.LookPath("nvidia-smi")
			return err == nil
		},
		ROCm: func() bool {
			_, err := os.Stat("/dev/kfd")
			return err == nil
		},
	}
}

// autoOrder is the fallback priority: best accelerator first, CPU last.
var autoOrder = []Kind{KindMPS, KindCUDA, KindROCm}

func (p Probe) available(k Kind) bool {
	var fn func() bool
	switch k {
	case KindMPS:
		fn = p.MPS
	case KindCUDA:
		fn = p.CUDA
	case KindROCm:
		fn = p.ROCm
	case KindCPU:
		return true
	}
	return fn != nil && fn()
}

// Select resolves a preference ("auto", "", or a Kind) to a Device. An
// explicit preference that is unavailable falls back to the auto order.
func Select(preference string, p Probe) Device {
	pref := Kind(strings.ToLower(strings.TrimSpace(preference)))
	if pref != "" && pref != "auto" && p.available(pref) {
		return newDevice(pref)
	}
	for _, k := range autoOrder {
		if p.available(k) {
			return newDevice(k)
		}
	}
	return newDevice(KindCPU)
}

func newDevice(k Kind) Device {
	if k == KindCPU {
		return Device{Kind: k, Precision: FP32}
	}
	return Device{Kind: k, Precision: FP16}
}
