package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key identifies one cached agent result. TenantID leads the serialized
// form so two tenants can never collide on the same agent and inputs.
type Key struct {
	TenantID     string
	AgentID      string
	AgentVersion string
	InputsHash   string
}

// String renders the key in its canonical tenant-first form
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.TenantID, k.AgentID, k.AgentVersion, k.InputsHash)
}

// ComputeInputsHash hashes a node's resolved inputs into a short stable
// digest. json.Marshal sorts map keys, so equal input maps produce equal
// hashes regardless of insertion order. Inputs that cannot be serialized
// fall back to their fmt representation rather than failing the run.
func ComputeInputsHash(inputs map[string]any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", inputs))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// NewKey builds a cache key from job fields and resolved inputs
func NewKey(tenantID, agentID, agentVersion string, inputs map[string]any) Key {
	return Key{
		TenantID:     tenantID,
		AgentID:      agentID,
		AgentVersion: agentVersion,
		InputsHash:   ComputeInputsHash(inputs),
	}
}
