package routes

// Line is an ordered run of station ids; adjacent entries are directly
// connected. Lines may share stations (transfer points) or branch.
type Line struct {
	Number   int
	Stations []int
}

// NetworkLines is the fixed metro network this deployment serves. Line 3
// splits past station 72 into a north branch and a west branch; the west
// branch rejoins line 2 at station 12.
func NetworkLines() []Line {
	return []Line{
		{Number: 1, Stations: []int{
			42, 8, 43, 70, 35, 24, 69, 49, 68, 84, 50, 37, 13, 15, 53, 26, 27, 61, 62,
			1, 5, 10, 22, 21, 51, 46, 38, 66, 36, 41, 17, 6, 32, 52, 56,
		}},
		{Number: 2, Stations: []int{
			19, 65, 57, 34, 33, 12, 16, 14, 58, 62, 55, 25, 10, 31, 60, 63, 9, 18, 48, 3,
		}},
		{Number: 3, Stations: []int{
			4, 45, 73, 59, 44, 7, 30, 11, 40, 39, 20, 47, 67, 71, 29, 2, 23, 28, 25,
			1, 54, 64, 72,
		}},
		{Number: 4, Stations: []int{72, 74, 75, 76, 77, 78, 79}},
		{Number: 5, Stations: []int{72, 80, 81, 82, 83, 12}},
	}
}
