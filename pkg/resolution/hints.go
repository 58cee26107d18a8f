package resolution

import (
	"context"

	"github.com/ekaya-inc/opd-explorer/pkg/apperrors"
	"github.com/ekaya-inc/opd-explorer/pkg/defaults"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

// HintsForDataset builds the hint set that walks the download chain to d.
// The year hint is the most recent year d offers, or NOT APPLICABLE when it
// has no concrete year.
func HintsForDataset(ctx context.Context, lookup Lookup, d models.DatasetDescriptor) (defaults.State, error) {
	general, sub := models.SplitTableType(d.TableType)

	years, err := lookup.Years(ctx, []models.DatasetDescriptor{d})
	if err != nil {
		return defaults.NewDownload(), apperrors.NewLoadFailure(apperrors.PhaseResolution, "years", err)
	}
	year := models.NotApplicableLabel
	for _, y := range SortYears(years) {
		if y.IsConcrete() {
			year = y.Label()
			break
		}
	}

	bulk := map[models.Stage]string{
		models.StageState:            d.State,
		models.StageSource:           d.SourceName,
		models.StageTableTypeGeneral: general,
		models.StageTableTypeSub:     sub,
		models.StageAgency:           d.Agency,
		models.StageYear:             year,
		models.StageURL:              d.URL,
		models.StageID:               d.DatasetID,
	}
	return defaults.NewDownload().ApplyHints(bulk)
}

