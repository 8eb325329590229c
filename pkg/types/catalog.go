package types

// WorkerSpec is a static roster entry of a resource tier.
type WorkerSpec struct {
	Name           string `json:"name" yaml:"name"`
	Capability     string `json:"capability" yaml:"capability"`
	Specialization string `json:"specialization" yaml:"specialization"`
	Memory         string `json:"memory" yaml:"memory"`
	Fallback       string `json:"fallback" yaml:"fallback"`
}

// CapabilitySource records which link of the fallback chain was used.
type CapabilitySource string

const (
	// CapabilityPrimary means the spec's own capability was available.
	CapabilityPrimary CapabilitySource = "primary"
	// CapabilityFallback means the spec's fallback capability was used.
	CapabilityFallback CapabilitySource = "fallback"
	// CapabilityBaseline means neither was available and the baseline was substituted.
	CapabilityBaseline CapabilitySource = "baseline"
)

// ResolvedWorker is a verified (spec, capability) pair ready for provisioning.
type ResolvedWorker struct {
	Spec       WorkerSpec       `json:"spec"`
	Capability string           `json:"capability"`
	Source     CapabilitySource `json:"source"`
}

// Degraded reports whether the primary capability could not be used.
func (r ResolvedWorker) Degraded() bool {
	return r.Source != CapabilityPrimary
}
