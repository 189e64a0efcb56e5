package recommend

import "github.com/hamori-app/hamori/internal/models"

// DemoCandidates returns the built-in candidate set served whenever the
// live place search fails. A fresh slice is returned on every call.
func DemoCandidates() []models.Candidate {
	return []models.Candidate{
		{
			ID:          "demo-1",
			Name:        "和食鍋専門店 あったか亭",
			Address:     "東京都渋谷区神宮前5-1-1",
			Rating:      models.Float64(4.5),
			ReviewCount: models.Int(120),
			PriceLevel:  models.Int(2),
			IsOpenNow:   models.Bool(true),
		},
		{
			ID:          "demo-2",
			Name:        "カフェ ホットタイム",
			Address:     "東京都渋谷区神宮前5-2-2",
			Rating:      models.Float64(4.2),
			ReviewCount: models.Int(85),
			PriceLevel:  models.Int(1),
			IsOpenNow:   models.Bool(true),
		},
		{
			ID:          "demo-3",
			Name:        "コージーインテリア料理店",
			Address:     "東京都渋谷区神宮前5-3-3",
			Rating:      models.Float64(4.7),
			ReviewCount: models.Int(210),
			PriceLevel:  models.Int(3),
			IsOpenNow:   models.Bool(false),
		},
	}
}
