package sqlsource

import (
	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

func init() {
	source.Register(source.Registration{
		Info: source.LoaderInfo{
			Type:        models.DataTypeSQL,
			DisplayName: "SQL database",
			Description: "Tables in configured PostgreSQL or SQL Server connections",
		},
		Factory: func(deps source.Deps) (source.Loader, error) {
			mgr := NewConnectionManager(ConnectionManagerConfig{}, deps.Logger)
			return New(deps.SQLConnections, mgr), nil
		},
	})
}
