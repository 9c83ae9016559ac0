package dispatch

import (
	"fmt"

	"github.com/odyssey-erp/msbot/internal/rbac"
)

const (
	failureMessage       = "Sorry, something went wrong while processing your message. Please try again later."
	misconfiguredMessage = "The bot is misconfigured: no handler is available to answer messages. Please contact an administrator."
)

func unauthorizedMessage(principalID string) string {
	return fmt.Sprintf("Access denied: you are not authorized to use this bot.\nAsk an administrator to grant access to your user id: `%s`", principalID)
}

func permissionDeniedMessage(role rbac.Role, perm rbac.Permission) string {
	return fmt.Sprintf("Insufficient permissions: your role (%s) lacks the required permission `%s`.", role, perm)
}
