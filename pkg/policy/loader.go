package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

// policyFile is the on-disk shape: one or more policies per document.
type policyFile struct {
	Policies []contracts.AIPolicy `yaml:"policies"`
}

// ParsePolicies decodes YAML policy definitions. Accepts either a top-level
// `policies:` list or a single bare policy document.
func ParsePolicies(data []byte) ([]contracts.AIPolicy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err == nil && len(file.Policies) > 0 {
		return file.Policies, nil
	}

	var single contracts.AIPolicy
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("policy: yaml decode failed: %w", err)
	}
	if single.ID == "" {
		return nil, fmt.Errorf("policy: no policies found in document")
	}
	return []contracts.AIPolicy{single}, nil
}

// LoadPolicyFile reads and registers every policy in a YAML file. Constraint
// config validation happens inside RegisterPolicy, so a malformed file fails
// fast before any evaluation.
func LoadPolicyFile(rt *Runtime, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	policies, err := ParsePolicies(data)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(policies))
	for _, p := range policies {
		if err := rt.RegisterPolicy(p); err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}
