// Package plugins collects the plugins shipped with the server.
package plugins

import (
	"github.com/lumenlib/lumen-server/internal/plugin"
	"github.com/lumenlib/lumen-server/internal/plugins/autoimport"
	"github.com/lumenlib/lumen-server/internal/plugins/search"
	"github.com/lumenlib/lumen-server/internal/plugins/thumbnail"
)

// Builtin returns a fresh factory table for every bundled plugin.
func Builtin() map[string]plugin.Factory {
	return map[string]plugin.Factory{
		autoimport.Name: autoimport.Factory(),
		search.Name:     search.Factory(),
		thumbnail.Name:  thumbnail.Factory(),
	}
}
