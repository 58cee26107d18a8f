package socrata

import (
	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

func init() {
	source.Register(source.Registration{
		Info: source.LoaderInfo{
			Type:        models.DataTypeSocrata,
			DisplayName: "Socrata",
			Description: "Socrata Open Data API (SODA) datasets",
		},
		Factory: func(deps source.Deps) (source.Loader, error) {
			return New(deps.Client(), deps.SocrataAppToken), nil
		},
	})
}
