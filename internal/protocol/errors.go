package protocol

const (
	// Construction/request validation.
	ErrBadRequest = "E_BAD_REQUEST"

	// Planner RPC layer.
	ErrPlanInvalid = "E_PLAN_INVALID"
	ErrPlanTimeout = "E_PLAN_TIMEOUT"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:  {},
	ErrPlanInvalid: {},
	ErrPlanTimeout: {},
	ErrInternal:    {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
