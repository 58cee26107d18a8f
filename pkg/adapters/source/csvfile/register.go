package csvfile

import (
	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

func init() {
	source.Register(source.Registration{
		Info: source.LoaderInfo{
			Type:        models.DataTypeCSV,
			DisplayName: "CSV",
			Description: "CSV files, optionally inside a zip archive",
		},
		Factory: func(deps source.Deps) (source.Loader, error) {
			return New(deps.Client()), nil
		},
	})
}
