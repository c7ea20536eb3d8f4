package alerting

import (
	"fmt"

	"skyguard/internal/eligibility"
	"skyguard/internal/types"
)

// ValidateRequest checks enums and returns a copy of req with title and
// message sanitized. The HTTP layer validates too; the engine re-checks
// because it is also driven by the weather monitor and Q&A.
func ValidateRequest(req SendRequest) (SendRequest, error) {
	if !req.Type.Valid() {
		return req, types.NewAppError(types.ErrCodeValidationAlertType,
			fmt.Sprintf("Invalid alert type %q", req.Type), nil)
	}
	if !req.Priority.Valid() {
		return req, types.NewAppError(types.ErrCodeValidationPriority,
			fmt.Sprintf("Invalid priority %q", req.Priority), nil)
	}
	if _, err := eligibility.RolesFor(req.Recipients); err != nil {
		return req, err
	}
	if req.Channel != "" && !req.Channel.Valid() {
		return req, types.NewAppError(types.ErrCodeValidationChannel,
			fmt.Sprintf("Invalid delivery channel %q", req.Channel), nil)
	}

	title, err := types.ValidateTitle(req.Title)
	if err != nil {
		return req, err
	}
	message, err := types.ValidateMessage(req.Message)
	if err != nil {
		return req, err
	}
	req.Title = title
	req.Message = message
	return req, nil
}
