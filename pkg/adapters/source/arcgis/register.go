package arcgis

import (
	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

func init() {
	source.Register(source.Registration{
		Info: source.LoaderInfo{
			Type:        models.DataTypeArcGIS,
			DisplayName: "ArcGIS",
			Description: "ArcGIS FeatureServer and MapServer layers",
		},
		Factory: func(deps source.Deps) (source.Loader, error) {
			return New(deps.Client()), nil
		},
	})
}
