// Package all registers every backend module.
package all

import (
	"outweb/lib/backends"
	"outweb/lib/scrapers/nyaa"
	"outweb/lib/scrapers/openmeteo"
	"outweb/lib/scrapers/peertube"
	"outweb/lib/scrapers/redmine"
	"outweb/lib/scrapers/wttr"
)

var Modules = []backends.Module{
	nyaa.Module,
	openmeteo.Module,
	peertube.Module,
	redmine.Module,
	wttr.Module,
}

func Registry() *backends.Registry {
	reg := backends.NewRegistry()
	for _, m := range Modules {
		reg.Register(m)
	}
	return reg
}
