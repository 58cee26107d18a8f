package carto

import (
	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

func init() {
	source.Register(source.Registration{
		Info: source.LoaderInfo{
			Type:        models.DataTypeCarto,
			DisplayName: "Carto",
			Description: "Carto tables queried through the SQL API",
		},
		Factory: func(deps source.Deps) (source.Loader, error) {
			return New(deps.Client()), nil
		},
	})
}
