package audit

import "strings"

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// Route overrides where the path alone does not name the action.
var routeOverrides = map[string]ActionResource{
	"POST /v1/auth/logout":       {Action: "logout", Resource: "session"},
	"POST /v1/auth/refresh":      {Action: "refresh", Resource: "session"},
	"POST /v1/auth/link/consume": {Action: "consume", Resource: "login_link"},
	"POST /v1/auth/link":         {Action: "create", Resource: "login_link"},
}

// ParseRoute returns action and resource for an HTTP method and a gin route template
// (e.g. "GET", "/v1/invites/:token"). Resource is the first path segment after the version
// with a trailing plural "s" removed; action is derived from the method, or from the last
// static segment under /auth.
func ParseRoute(method, route string) ActionResource {
	method = strings.ToUpper(method)
	if ar, ok := routeOverrides[method+" "+route]; ok {
		return ar
	}
	segs := staticSegments(route)
	if len(segs) > 0 && isVersion(segs[0]) {
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	if segs[0] == "auth" {
		if len(segs) == 1 {
			return ActionResource{Action: methodToAction(method), Resource: "auth"}
		}
		return ActionResource{Action: segs[len(segs)-1], Resource: "auth"}
	}
	return ActionResource{Action: methodToAction(method), Resource: strings.TrimSuffix(segs[0], "s")}
}

func staticSegments(route string) []string {
	var out []string
	for _, s := range strings.Split(route, "/") {
		if s == "" || strings.HasPrefix(s, ":") || strings.HasPrefix(s, "*") {
			continue
		}
		out = append(out, s)
	}
	return out
}

func isVersion(s string) bool {
	return len(s) > 1 && s[0] == 'v' && strings.Trim(s[1:], "0123456789") == ""
}

func methodToAction(method string) string {
	switch method {
	case "GET", "HEAD":
		return "get"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
