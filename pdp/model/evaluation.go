package model

// PolicyEvaluationResult is the outcome of evaluating one policy against one
// request. Err marks a malformed or unrecognized rule payload; callers must
// treat it as a deny, never as a skip.
type PolicyEvaluationResult struct {
	PolicyID   string
	PolicyName string
	Permit     bool
	Reason     string
	Priority   int
	Err        error
}
