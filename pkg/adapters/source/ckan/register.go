package ckan

import (
	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

func init() {
	source.Register(source.Registration{
		Info: source.LoaderInfo{
			Type:        models.DataTypeCKAN,
			DisplayName: "CKAN",
			Description: "CKAN DataStore resources queried with datastore_search_sql",
		},
		Factory: func(deps source.Deps) (source.Loader, error) {
			return New(deps.Client()), nil
		},
	})
}
