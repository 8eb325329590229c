package catalog

import (
	"go.uber.org/zap"

	"yqhp/arena/pkg/logger"
	"yqhp/arena/pkg/types"
)

// AvailabilitySet answers whether a capability can be used for this run.
type AvailabilitySet interface {
	Available(capability string) bool
}

// AllowList treats only the listed capabilities as available.
type AllowList map[string]struct{}

// NewAllowList builds an AllowList.
func NewAllowList(ids ...string) AllowList {
	s := make(AllowList, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Available implements AvailabilitySet.
func (s AllowList) Available(capability string) bool {
	_, ok := s[capability]
	return ok
}

// DenyList treats every capability as available except the listed ones.
type DenyList map[string]struct{}

// NewDenyList builds a DenyList.
func NewDenyList(ids ...string) DenyList {
	s := make(DenyList, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Available implements AvailabilitySet.
func (s DenyList) Available(capability string) bool {
	_, denied := s[capability]
	return !denied
}

// Verifier resolves worker specs against an AvailabilitySet. It never fails:
// the last link of every fallback chain is the baseline capability.
type Verifier struct {
	available AvailabilitySet
	log       *zap.Logger
}

// NewVerifier creates a verifier. A nil set treats every capability as available.
func NewVerifier(available AvailabilitySet, log *zap.Logger) *Verifier {
	if available == nil {
		available = DenyList{}
	}
	return &Verifier{available: available, log: logger.Or(log, "catalog")}
}

// Verify resolves one spec.
func (v *Verifier) Verify(spec types.WorkerSpec) types.ResolvedWorker {
	if spec.Capability != "" && v.available.Available(spec.Capability) {
		return types.ResolvedWorker{Spec: spec, Capability: spec.Capability, Source: types.CapabilityPrimary}
	}
	if spec.Fallback != "" && v.available.Available(spec.Fallback) {
		v.log.Info("capability unavailable, using fallback",
			zap.String("worker", spec.Name),
			zap.String("capability", spec.Capability),
			zap.String("fallback", spec.Fallback))
		return types.ResolvedWorker{Spec: spec, Capability: spec.Fallback, Source: types.CapabilityFallback}
	}

	v.log.Warn("capability and fallback unavailable, substituting baseline",
		zap.String("worker", spec.Name),
		zap.String("capability", spec.Capability),
		zap.String("fallback", spec.Fallback))
	spec.Specialization = BaselineSpecialization
	return types.ResolvedWorker{Spec: spec, Capability: BaselineCapability, Source: types.CapabilityBaseline}
}

// VerifyAll resolves specs in order.
func (v *Verifier) VerifyAll(specs []types.WorkerSpec) []types.ResolvedWorker {
	out := make([]types.ResolvedWorker, len(specs))
	for i, s := range specs {
		out[i] = v.Verify(s)
	}
	return out
}
