package filterplugin

import "github.com/fmuellner/telepathy-mission-control/pkg/filterchain"

func init() {
	RegisterBuiltin("always", func() filterchain.Filter {
		return func(map[string]any) bool { return true }
	})

	RegisterBuiltin("requires-target-handle", func() filterchain.Filter {
		return func(props map[string]any) bool {
			_, ok := props["TargetHandle"]
			return ok
		}
	})

	RegisterBuiltin("requires-requested", func() filterchain.Filter {
		return func(props map[string]any) bool {
			v, ok := props["Requested"]
			if !ok {
				return false
			}
			requested, ok := v.(bool)
			return ok && requested
		}
	})
}
