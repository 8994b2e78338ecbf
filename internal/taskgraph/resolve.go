// Package taskgraph resolves generated task dependencies, which reference
// other tasks by name, into id edges within one generation batch. Names that
// match no task and tasks that sit on a dependency cycle are reported as issues.
// Resolution runs as a Mangle Datalog program.
package taskgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"submind/internal/logging"
	"submind/internal/types"
)

const program = `
Decl task(Name).
Decl depends_on(Task, Dep).

resolved(T, D) :- depends_on(T, D), task(D).
unresolved(T, D) :- depends_on(T, D), !task(D).

reaches(X, Y) :- resolved(X, Y).
reaches(X, Z) :- resolved(X, Y), reaches(Y, Z).
cyclic(X) :- reaches(X, X).
`

// Node is one persisted task with its raw dependency names.
type Node struct {
	ID        int64
	Name      string
	DependsOn []string
}

// Edge is a resolved dependency: From depends on To.
type Edge struct {
	From int64
	To   int64
}

// Resolution is the outcome of one batch.
type Resolution struct {
	Edges  []Edge
	Issues []types.DependencyIssue
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolve maps dependency names to task ids within nodes. Matching ignores case
// and surrounding space; when names repeat, the first task wins. Cycles are
// flagged and their edges kept.
func Resolve(nodes []Node) (*Resolution, error) {
	timer := logging.StartTimer(logging.CategoryTaskGraph, "Resolve")
	defer timer.Stop()

	unit, err := parse.Unit(strings.NewReader(program))
	if err != nil {
		return nil, fmt.Errorf("parse dependency program: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("analyze dependency program: %w", err)
	}

	ids := make(map[string]int64, len(nodes))
	names := make(map[string]string, len(nodes))
	store := factstore.NewSimpleInMemoryStore()
	for _, n := range nodes {
		k := key(n.Name)
		if k == "" {
			continue
		}
		if _, seen := ids[k]; !seen {
			ids[k] = n.ID
			names[k] = n.Name
		}
		store.Add(ast.NewAtom("task", ast.String(k)))
	}
	for _, n := range nodes {
		from := key(n.Name)
		if from == "" {
			continue
		}
		for _, dep := range n.DependsOn {
			if key(dep) == "" {
				continue
			}
			store.Add(ast.NewAtom("depends_on", ast.String(from), ast.String(key(dep))))
		}
	}

	if _, err := engine.EvalProgramWithStats(info, store); err != nil {
		return nil, fmt.Errorf("evaluate dependency program: %w", err)
	}

	res := &Resolution{}
	err = query(store, "resolved", 2, func(args []string) {
		res.Edges = append(res.Edges, Edge{From: ids[args[0]], To: ids[args[1]]})
	})
	if err != nil {
		return nil, err
	}
	err = query(store, "unresolved", 2, func(args []string) {
		res.Issues = append(res.Issues, types.DependencyIssue{
			TaskID: ids[args[0]], TaskName: names[args[0]], Kind: types.IssueUnresolved, Reference: args[1],
		})
	})
	if err != nil {
		return nil, err
	}
	err = query(store, "cyclic", 1, func(args []string) {
		res.Issues = append(res.Issues, types.DependencyIssue{
			TaskID: ids[args[0]], TaskName: names[args[0]], Kind: types.IssueCyclic, Reference: names[args[0]],
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(res.Edges, func(i, j int) bool {
		if res.Edges[i].From != res.Edges[j].From {
			return res.Edges[i].From < res.Edges[j].From
		}
		return res.Edges[i].To < res.Edges[j].To
	})
	sort.Slice(res.Issues, func(i, j int) bool {
		a, b := res.Issues[i], res.Issues[j]
		if a.TaskID != b.TaskID {
			return a.TaskID < b.TaskID
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Reference < b.Reference
	})

	logging.TaskGraphDebug("Resolved %d tasks: %d edges, %d issues", len(nodes), len(res.Edges), len(res.Issues))
	return res, nil
}

func query(store factstore.FactStore, pred string, arity int, fn func(args []string)) error {
	return store.GetFacts(ast.NewQuery(ast.PredicateSym{Symbol: pred, Arity: arity}), func(a ast.Atom) error {
		args := make([]string, len(a.Args))
		for i, t := range a.Args {
			c, ok := t.(ast.Constant)
			if !ok {
				return fmt.Errorf("%s: unexpected term %v", pred, t)
			}
			args[i] = c.Symbol
		}
		fn(args)
		return nil
	})
}
