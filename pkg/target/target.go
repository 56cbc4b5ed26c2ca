package target

import (
	"os"
	"strings"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/types"
)

const (
	// Scheme is the url scheme selecting a federation node
	Scheme = "max"

	// GlobalHost addresses the local global node
	GlobalHost = "~"

	prefix    = Scheme + "://"
	envTarget = "MAX_TARGET"
)

// Target addresses one node in the federation. The host selects the global
// node ("~" for the local one); the optional workspace and installation
// segments descend one level each.
type Target struct {
	Host         string
	Workspace    types.WorkspaceID
	Installation types.InstallationID
}

// Global is the local global node
func Global() Target {
	return Target{Host: GlobalHost}
}

// Parse reads an absolute target url of the form
// max://<host>[/<workspace>[/<installation>]].
func Parse(raw string) (Target, error) {
	if !strings.HasPrefix(raw, prefix) {
		return Target{}, badTarget(raw, "missing max:// scheme")
	}
	rest := strings.TrimPrefix(raw, prefix)
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return Target{}, badTarget(raw, "missing host")
	}

	segments := strings.Split(rest, "/")
	if len(segments) > 3 {
		return Target{}, badTarget(raw, "too many path segments")
	}
	for _, segment := range segments {
		if segment == "" {
			return Target{}, badTarget(raw, "empty path segment")
		}
	}

	t := Target{Host: segments[0]}
	if len(segments) > 1 {
		t.Workspace = types.WorkspaceID(segments[1])
	}
	if len(segments) > 2 {
		t.Installation = types.InstallationID(segments[2])
	}
	return t, nil
}

// Resolve interprets raw against a base target. Absolute urls stand alone;
// anything else is a relative path descending from the base, so a bare
// installation name addresses an installation inside the base workspace.
func Resolve(base Target, raw string) (Target, error) {
	if raw == "" {
		return base, nil
	}
	if strings.HasPrefix(raw, prefix) {
		return Parse(raw)
	}

	segments := strings.Split(strings.Trim(raw, "/"), "/")
	for _, segment := range segments {
		if segment == "" {
			return Target{}, badTarget(raw, "empty path segment")
		}
	}

	t := base
	for _, segment := range segments {
		switch {
		case t.Workspace == "":
			t.Workspace = types.WorkspaceID(segment)
		case t.Installation == "":
			t.Installation = types.InstallationID(segment)
		default:
			return Target{}, badTarget(raw, "path descends below installation")
		}
	}
	return t, nil
}

// Default picks the ambient target: MAX_TARGET when set, else the local
// global node.
func Default() (Target, error) {
	if raw := os.Getenv(envTarget); raw != "" {
		return Parse(raw)
	}
	return Global(), nil
}

// IsGlobal reports whether the target addresses the global node itself
func (t Target) IsGlobal() bool {
	return t.Workspace == "" && t.Installation == ""
}

// Scope renders the routing scope a request to this target carries
func (t Target) Scope() rpc.RouteScope {
	return rpc.RouteScope{WorkspaceID: t.Workspace, InstallationID: t.Installation}
}

// String renders the canonical url form
func (t Target) String() string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(t.Host)
	if t.Workspace != "" {
		b.WriteString("/")
		b.WriteString(string(t.Workspace))
	}
	if t.Installation != "" {
		b.WriteString("/")
		b.WriteString(string(t.Installation))
	}
	return b.String()
}

func badTarget(raw, detail string) error {
	return errdefs.ErrBadTarget.New(errdefs.Props{"target": raw, "detail": detail})
}
