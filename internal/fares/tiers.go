package fares

// Tier names match the ticket_type rows in the datastore.
const (
	TierSameStation = "Same Station"
	TierShort       = "Short Distance"
	TierMedium      = "Medium Distance"
	TierLong        = "Long Distance"
	TierExtended    = "Extended Distance"
)

// TierForStationCount maps a station count to its fare tier. Brackets are
// inclusive on both ends; every non-negative count lands in exactly one.
func TierForStationCount(stationCount int) string {
	switch {
	case stationCount <= 0:
		return TierSameStation
	case stationCount <= 9:
		return TierShort
	case stationCount <= 16:
		return TierMedium
	case stationCount <= 23:
		return TierLong
	default:
		return TierExtended
	}
}
