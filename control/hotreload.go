// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide hot-reload hooks, independent of any one Registry
// instance — used by components (metrics exporters, debug probes)
// that want to react to any registry change without holding a
// reference to the Registry that produced it.

package control

var reloadHooks []func(RegistrySnapshot)

// RegisterReloadHook adds a listener invoked whenever WireHotReload's
// registry dispatches a change.
func RegisterReloadHook(fn func(RegistrySnapshot)) {
	reloadHooks = append(reloadHooks, fn)
}

// WireHotReload connects a Registry's OnReload to the process-wide
// hook list, so RegisterReloadHook listeners fire on that registry's
// changes too.
func WireHotReload(r *Registry) {
	r.OnReload(func(s RegistrySnapshot) {
		for _, fn := range reloadHooks {
			go fn(s)
		}
	})
}
