package recognize

import "github.com/hyperjump/yomitori/internal/models"

// Aggregate reduces token confidences to page statistics. Only confidences
// greater than zero count; with none, the aggregate is undefined.
func Aggregate(tokens []models.Token) models.Aggregate {
	var agg models.Aggregate
	sum := 0
	for _, t := range tokens {
		if t.Confidence <= 0 {
			continue
		}
		if agg.Valid == 0 || t.Confidence < agg.Min {
			agg.Min = t.Confidence
		}
		if t.Confidence > agg.Max {
			agg.Max = t.Confidence
		}
		sum += t.Confidence
		agg.Valid++
	}
	if agg.Valid > 0 {
		agg.Mean = float64(sum) / float64(agg.Valid)
	}
	return agg
}
