package routes

import "github.com/khaledhegab/ets-backend-final/internal/fares"

// TripInfo summarizes a route for fare settlement and journey planning.
type TripInfo struct {
	StartStation     int    `json:"start_station"`
	EndStation       int    `json:"end_station"`
	Route            []Step `json:"route"`
	StationCount     int    `json:"station_count"`
	TierName         string `json:"ticket_type"`
	LinesUsed        []int  `json:"lines_used"`
	HasTransfer      bool   `json:"has_transfer"`
	TransferStations []int  `json:"transfer_stations"`
}

// TripInfo computes the route between two stations and derives station
// count, fare tier and transfer details from it.
func (g *Graph) TripInfo(start, end int) (TripInfo, error) {
	if start == end {
		return TripInfo{
			StartStation: start,
			EndStation:   end,
			Route:        []Step{{Station: start}},
			TierName:     fares.TierSameStation,
		}, nil
	}

	path, err := g.Route(start, end)
	if err != nil {
		return TripInfo{}, err
	}

	stationCount := len(path) - 1
	var linesUsed []int
	seen := map[int]bool{}
	for _, step := range path {
		if step.ArrivalLine == 0 || seen[step.ArrivalLine] {
			continue
		}
		seen[step.ArrivalLine] = true
		linesUsed = append(linesUsed, step.ArrivalLine)
	}

	info := TripInfo{
		StartStation: start,
		EndStation:   end,
		Route:        path,
		StationCount: stationCount,
		TierName:     fares.TierForStationCount(stationCount),
		LinesUsed:    linesUsed,
		HasTransfer:  len(linesUsed) > 1,
	}
	if info.HasTransfer {
		info.TransferStations = transferStations(path)
	} else {
		info.TransferStations = []int{}
	}
	return info, nil
}

// transferStations lists the stations where the rider changes line: the
// last station reached on the previous line, in route order.
func transferStations(path []Step) []int {
	transfers := []int{}
	for i := 1; i < len(path); i++ {
		if path[i-1].ArrivalLine != 0 && path[i].ArrivalLine != path[i-1].ArrivalLine {
			transfers = append(transfers, path[i-1].Station)
		}
	}
	return transfers
}
