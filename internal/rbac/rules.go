package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"exam:list",
		"exam:status",
		"attempt:start",
		"attempt:answer",
		"attempt:submit",
		"attempt:view_own",
	},
	"teacher": {
		"exam:list",
		"exam:create",
		"exam:update_own",
		"exam:view_own",
		"question:manage",
		"answerkey:manage",
		"access:grant",
		"attempt:view_all",
		"analytics:view",
	},
	"admin": {
		"*", // everything
	},
}
