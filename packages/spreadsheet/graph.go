package spreadsheet

import (
	"slices"
	"sort"
)

// DependencyNode represents a cell in the dependency graph
type DependencyNode struct {
	// address of *THIS* node, normalized
	Address string

	// cell-to-cell dependencies
	CellPrecedents map[string]*DependencyNode // cells this cell depends on
	CellDependents map[string]*DependencyNode // cells that depend on this cell

	// formula cells need ordering, everything else is a leaf supplied by
	// the caller
	IsFormula bool
}

// DependencyGraph maps each formula cell to the cells it reads. Edges point
// from a formula cell to its precedents; dependents are tracked in reverse
// so edits can be traced forward.
type DependencyGraph struct {
	nodes map[string]*DependencyNode // all nodes in the graph
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*DependencyNode),
	}
}

// BuildGraph builds a graph from formula cell -> dependencies. Both sides
// are normalized.
func BuildGraph(dependencies map[string][]string) *DependencyGraph {
	dg := NewDependencyGraph()
	for cell, deps := range dependencies {
		dg.AddFormulaCell(cell, deps...)
	}
	return dg
}

// GetOrCreateNode gets an existing node or creates a new one
func (dg *DependencyGraph) GetOrCreateNode(addr string) *DependencyNode {
	addr = Normalize(addr)
	if node, exists := dg.nodes[addr]; exists {
		return node
	}

	node := &DependencyNode{
		Address:        addr,
		CellPrecedents: make(map[string]*DependencyNode),
		CellDependents: make(map[string]*DependencyNode),
	}
	dg.nodes[addr] = node
	return node
}

// GetNode retrieves a node if it exists
func (dg *DependencyGraph) GetNode(addr string) (*DependencyNode, bool) {
	node, exists := dg.nodes[Normalize(addr)]
	return node, exists
}

// AddFormulaCell registers addr as a formula cell reading deps.
func (dg *DependencyGraph) AddFormulaCell(addr string, deps ...string) {
	node := dg.GetOrCreateNode(addr)
	node.IsFormula = true
	for _, dep := range deps {
		dg.AddCellDependency(node.Address, dep)
	}
}

// AddCellDependency adds a cell-to-cell dependency (from depends on to)
func (dg *DependencyGraph) AddCellDependency(from, to string) {
	fromNode := dg.GetOrCreateNode(from)
	toNode := dg.GetOrCreateNode(to)

	// mark dep
	fromNode.CellPrecedents[toNode.Address] = toNode
	toNode.CellDependents[fromNode.Address] = fromNode
}

// IsFormula reports whether addr is a formula cell of this graph.
func (dg *DependencyGraph) IsFormula(addr string) bool {
	node, ok := dg.GetNode(addr)
	return ok && node.IsFormula
}

// TopologicalSort orders formula cells so that each comes after every
// formula cell it reads. Input cells carry no in-degree. Among cells that
// are ready at the same time the smallest address goes first, so the order
// is stable across runs.
//
// When cells remain unresolved the graph has a cycle and a *CycleError
// naming all of them is returned.
func (dg *DependencyGraph) TopologicalSort() ([]string, error) {
	indegree := make(map[string]int)
	for addr, node := range dg.nodes {
		if !node.IsFormula {
			continue
		}
		indegree[addr] = 0
		for _, precedent := range node.CellPrecedents {
			if precedent.IsFormula {
				indegree[addr]++
			}
		}
	}

	var ready []string
	for addr, deg := range indegree {
		if deg == 0 {
			ready = append(ready, addr)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(indegree))
	for len(ready) > 0 {
		addr := ready[0]
		ready = ready[1:]
		order = append(order, addr)

		for dependent := range dg.nodes[addr].CellDependents {
			if _, ok := indegree[dependent]; !ok {
				continue
			}
			indegree[dependent]--
			if indegree[dependent] == 0 {
				i, _ := slices.BinarySearch(ready, dependent)
				ready = slices.Insert(ready, i, dependent)
			}
		}
	}

	if len(order) != len(indegree) {
		var unresolved []string
		for addr, deg := range indegree {
			if deg > 0 {
				unresolved = append(unresolved, addr)
			}
		}
		sort.Strings(unresolved)
		return nil, &CycleError{Cells: unresolved}
	}

	return order, nil
}

// DependencyChain lists every transitive precedent of addr in discovery
// order, depth first with precedents visited alphabetically. addr itself
// is never listed.
func (dg *DependencyGraph) DependencyChain(addr string) []string {
	start := Normalize(addr)
	visited := map[string]struct{}{start: {}}
	var order []string

	var visit func(string)
	visit = func(cell string) {
		node, ok := dg.nodes[cell]
		if !ok {
			return
		}
		for _, precedent := range sortedKeys(node.CellPrecedents) {
			if _, seen := visited[precedent]; seen {
				continue
			}
			visited[precedent] = struct{}{}
			order = append(order, precedent)
			visit(precedent)
		}
	}

	visit(start)
	return order
}

// GetDirectPrecedents returns cells this cell directly depends on, sorted
func (dg *DependencyGraph) GetDirectPrecedents(addr string) []string {
	node, exists := dg.GetNode(addr)
	if !exists {
		return nil
	}
	return sortedKeys(node.CellPrecedents)
}

// GetDirectDependents returns cells directly depending on this cell, sorted
func (dg *DependencyGraph) GetDirectDependents(addr string) []string {
	node, exists := dg.GetNode(addr)
	if !exists {
		return nil
	}
	return sortedKeys(node.CellDependents)
}

// GetAllDependents returns all cells affected by this cell (transitive
// closure) in discovery order
func (dg *DependencyGraph) GetAllDependents(addr string) []string {
	visited := make(map[string]struct{})
	var result []string

	dg.collectDependents(Normalize(addr), visited, &result)
	return result
}

// collectDependents recursively collects all dependents
func (dg *DependencyGraph) collectDependents(addr string, visited map[string]struct{}, result *[]string) {
	if _, alreadyVisited := visited[addr]; alreadyVisited {
		return
	}
	visited[addr] = struct{}{}

	node, exists := dg.nodes[addr]
	if !exists {
		return
	}

	for _, dependentAddr := range sortedKeys(node.CellDependents) {
		if _, alreadyVisited := visited[dependentAddr]; !alreadyVisited {
			*result = append(*result, dependentAddr)
			dg.collectDependents(dependentAddr, visited, result)
		}
	}
}

// GetAffectedCells returns all cells that need recalculation when a cell
// changes, sorted. Range members are edges like any other dependency, so
// the transitive dependents are the whole answer.
func (dg *DependencyGraph) GetAffectedCells(addr string) []string {
	affected := dg.GetAllDependents(addr)
	sort.Strings(affected)
	return affected
}

// NodeCount returns the number of nodes in the graph
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.nodes)
}

func sortedKeys(m map[string]*DependencyNode) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
