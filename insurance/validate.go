package insurance

import "strings"

// ValidatePayload checks the fields a policy cannot exist without.
func ValidatePayload(p PolicyPayload) error {
	if strings.TrimSpace(p.PolicyHolderName) == "" {
		return &ValidationError{Field: "policyHolderName", Message: "is required"}
	}
	if p.PolicyStartDate == 0 {
		return &ValidationError{Field: "policyStartDate", Message: "is required"}
	}
	if p.PolicyEndDate == 0 {
		return &ValidationError{Field: "policyEndDate", Message: "is required"}
	}
	return nil
}
