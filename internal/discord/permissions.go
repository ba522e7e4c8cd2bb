package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker gates commands behind an optional guild role.
type PermissionChecker struct {
	roleID string
}

// NewPermissionChecker creates a PermissionChecker for roleID. An empty
// roleID allows everyone.
func NewPermissionChecker(roleID string) *PermissionChecker {
	return &PermissionChecker{roleID: roleID}
}

// Allowed reports whether the interaction author may use the bot. Direct
// message interactions (no Member) are refused when a role is configured.
func (p *PermissionChecker) Allowed(i *discordgo.InteractionCreate) bool {
	if p.roleID == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	return slices.Contains(i.Member.Roles, p.roleID)
}
