package rbac

import "strings"

const (
	RoleNone   = "None"
	RoleViewer = "Viewer"
	RoleEditor = "Editor"
	RoleAdmin  = "Admin"
)

type Action string

const (
	ActionAsk              Action = "ask"
	ActionBuildPanel       Action = "panel:build"
	ActionReadSettings     Action = "settings:read"
	ActionValidateSettings Action = "settings:validate"
)

var roleRank = map[string]int{
	RoleNone:   0,
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

// minimumRole is the lowest org role allowed to perform each action. Asking
// spends the server-held key, so it still needs a real org role.
var minimumRole = map[Action]string{
	ActionAsk:              RoleViewer,
	ActionBuildPanel:       RoleViewer,
	ActionReadSettings:     RoleEditor,
	ActionValidateSettings: RoleAdmin,
}

// Normalize maps a Grafana role string onto the known roles. Unknown roles are
// treated as None.
func Normalize(role string) string {
	for known := range roleRank {
		if strings.EqualFold(strings.TrimSpace(role), known) {
			return known
		}
	}
	return RoleNone
}

func Can(role string, action Action) bool {
	required, ok := minimumRole[action]
	if !ok {
		return false
	}
	return roleRank[Normalize(role)] >= roleRank[required]
}
