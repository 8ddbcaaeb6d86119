// Package bridge lets a dynamically typed host drive configuration builds.
//
// A Bridge owns builder instances in a registry and hands the host a
// Handle for each one. Render resolves a handle, runs the build outside the
// registry lock and encodes the result with a marshal.Factory for the
// host's value model:
//
//	b := bridge.New()
//	h, _ := b.Create(ctx)
//	cfg, err := bridge.Render[starlark.Value](ctx, b, marshal.StarlarkFactory{}, h, []string{"base.yaml", "prod.yaml"})
//
// Errors cross the boundary unchanged: an unknown handle yields a
// *registry.HandleError, a failed build a *BuildError with the engine's
// message, and a failed host constructor a *marshal.ConversionError.
// Results are never partial.
//
// By default instances live as long as the Bridge. WithArena switches to a
// table with explicit Release, where released handles are rejected even
// after their slot is reused.
//
// # Starlark
//
// Module exposes the bridge to Starlark scripts:
//
//	b = ConfigBuilder(defaults = {"debug": False}, env_var_prefix = "APP")
//	b.set_filter("rev", lambda s: s[::-1])
//	cfg = b.render(["base.yaml", "prod.yaml"], overrides = {"replicas": 3})
//	txt = b.render_str("name: {{ .name | rev }}", ctx = {"name": "svc"})
//	b.close()
//
// Every error is raised as a Starlark runtime error.
package bridge
