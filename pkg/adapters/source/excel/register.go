package excel

import (
	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

func init() {
	source.Register(source.Registration{
		Info: source.LoaderInfo{
			Type:        models.DataTypeExcel,
			DisplayName: "Excel",
			Description: "Excel workbooks (.xlsx)",
		},
		Factory: func(deps source.Deps) (source.Loader, error) {
			return New(deps.Client()), nil
		},
	})
}
