package models

import "os/exec"

// DetectDevice resolves the compute device. "auto" picks cuda when an NVIDIA
// driver is present (nvidia-smi in PATH), else cpu. Explicit values pass
// through unchanged.
func DetectDevice(pref string) string {
	switch pref {
	case "", "auto":
		if _, err := exec.LookPath("nvidia-smi"); err == nil {
			return "cuda"
		}
		return "cpu"
	default:
		return pref
	}
}
