package routes

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoRoute reports that the graph holds no path between two stations.
// During settlement this is a data-integrity problem, not user error: it
// means the network definition is missing an edge.
var ErrNoRoute = errors.New("no route found")

type edge struct {
	neighbor int
	line     int
}

// Graph is an undirected multigraph of stations built once from the line
// definitions. It is immutable after construction and safe for concurrent
// reads.
type Graph struct {
	adjacency map[int][]edge
	lines     []Line
}

// Step is one hop of a computed route. ArrivalLine is 0 for the origin.
type Step struct {
	Station     int `json:"station"`
	ArrivalLine int `json:"line,omitempty"`
}

// NewGraph inserts a bidirectional edge, tagged with the line number, for
// every pair of consecutive stations on every line.
func NewGraph(lines []Line) *Graph {
	g := &Graph{adjacency: make(map[int][]edge), lines: lines}
	for _, line := range lines {
		for i, station := range line.Stations {
			if _, ok := g.adjacency[station]; !ok {
				g.adjacency[station] = nil
			}
			if i == 0 {
				continue
			}
			prev := line.Stations[i-1]
			g.adjacency[station] = append(g.adjacency[station], edge{neighbor: prev, line: line.Number})
			g.adjacency[prev] = append(g.adjacency[prev], edge{neighbor: station, line: line.Number})
		}
	}
	return g
}

// HasStation reports whether a station appears on any line.
func (g *Graph) HasStation(id int) bool {
	_, ok := g.adjacency[id]
	return ok
}

// StationLines returns the sorted line numbers serving a station.
func (g *Graph) StationLines(id int) []int {
	seen := map[int]bool{}
	for _, line := range g.lines {
		for _, s := range line.Stations {
			if s == id {
				seen[line.Number] = true
				break
			}
		}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Route returns a path from start to end with the minimum number of line
// transfers. It runs a 0-1 BFS over a deque: extending along the current
// line costs nothing and goes to the front, switching lines costs one and
// goes to the back, so paths are popped in non-decreasing transfer order
// and the first arrival at end is optimal. Among routes tied on transfers
// the returned one is not guaranteed to minimize hops.
func (g *Graph) Route(start, end int) ([]Step, error) {
	if !g.HasStation(start) || !g.HasStation(end) {
		return nil, fmt.Errorf("route %d->%d: %w", start, end, ErrNoRoute)
	}

	type item struct {
		station int
		path    []Step
	}
	deque := []item{{station: start, path: []Step{{Station: start}}}}
	visited := map[int]bool{start: true}

	for len(deque) > 0 {
		cur := deque[0]
		deque = deque[1:]

		if cur.station == end {
			return cur.path, nil
		}

		lastLine := cur.path[len(cur.path)-1].ArrivalLine
		for _, e := range g.adjacency[cur.station] {
			if visited[e.neighbor] {
				continue
			}
			// Mark on scheduling, not on pop: a later, costlier path
			// to the same station can never improve on this one.
			visited[e.neighbor] = true

			next := make([]Step, len(cur.path), len(cur.path)+1)
			copy(next, cur.path)
			next = append(next, Step{Station: e.neighbor, ArrivalLine: e.line})

			if lastLine == 0 || lastLine == e.line {
				deque = append([]item{{station: e.neighbor, path: next}}, deque...)
			} else {
				deque = append(deque, item{station: e.neighbor, path: next})
			}
		}
	}

	return nil, fmt.Errorf("route %d->%d: %w", start, end, ErrNoRoute)
}

// StationCount returns how many stations a rider passes through between
// the two gates, excluding the start station. Same station counts zero.
func (g *Graph) StationCount(start, end int) (int, error) {
	if start == end {
		return 0, nil
	}
	path, err := g.Route(start, end)
	if err != nil {
		return 0, err
	}
	return len(path) - 1, nil
}

// TransferCount reports how many line changes a path contains. The origin
// step carries no line and is ignored.
func TransferCount(path []Step) int {
	transfers := 0
	for i := 2; i < len(path); i++ {
		if path[i].ArrivalLine != path[i-1].ArrivalLine {
			transfers++
		}
	}
	return transfers
}
