package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ErrEmptyExpression is returned for a blank trigger expression.
var ErrEmptyExpression = errors.New("scripting: empty expression")

// Evaluator compiles trigger expressions once and evaluates them against named tables.
//
// Evaluator is safe for concurrent use; evaluations are serialized on one LState.
type Evaluator struct {
	mu       sync.Mutex
	L        *lua.LState
	limit    int
	compiled map[string]*lua.LFunction
	logger   *zap.Logger
}

// NewEvaluator returns an Evaluator whose evaluations each run under a budget of limit
// opcodes.
//
// Precondition: limit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: the caller must call Close when done.
func NewEvaluator(limit int, logger *zap.Logger) *Evaluator {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		L:        NewSandboxedState(),
		limit:    limit,
		compiled: make(map[string]*lua.LFunction),
		logger:   logger,
	}
}

// LoadDir executes every *.lua file in dir in lexicographic order so that trigger
// expressions can call the helper functions they define. Each file runs under its own
// instruction budget.
//
// Precondition: dir must be a readable directory.
// Postcondition: returns an error naming the first file that failed; files before it
// stay loaded.
func (ev *Evaluator) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	ev.mu.Lock()
	defer ev.mu.Unlock()
	for _, path := range files {
		done := withBudget(ev.L, ev.limit)
		err := ev.L.DoFile(path)
		done()
		if err != nil {
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}
	ev.logger.Debug("trigger helpers loaded", zap.String("dir", dir), zap.Int("files", len(files)))
	return nil
}

// Compile checks that expr is a valid Lua expression and caches its compiled form.
func (ev *Evaluator) Compile(expr string) error {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	_, err := ev.compile(expr)
	return err
}

// Eval evaluates expr with each entry of globals bound to a Lua table of the same name
// and returns the result's Lua truthiness.
//
// Values may be bool, string, int, int64 or float64; anything else is bound as its
// fmt representation.
// Postcondition: compile errors, runtime errors and budget exhaustion are returned as
// errors; the state stays usable for the next call.
func (ev *Evaluator) Eval(expr string, globals map[string]map[string]any) (bool, error) {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	fn, err := ev.compile(expr)
	if err != nil {
		return false, err
	}
	for name, fields := range globals {
		tbl := ev.L.NewTable()
		for k, v := range fields {
			tbl.RawSetString(k, toLua(v))
		}
		ev.L.SetGlobal(name, tbl)
	}

	done := withBudget(ev.L, ev.limit)
	err = ev.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true})
	done()
	if err != nil {
		return false, fmt.Errorf("scripting: evaluating %q: %w", expr, err)
	}
	ret := ev.L.Get(-1)
	ev.L.Pop(1)
	return lua.LVAsBool(ret), nil
}

// Close releases the Lua state.
func (ev *Evaluator) Close() {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.L.Close()
}

func (ev *Evaluator) compile(expr string) (*lua.LFunction, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrEmptyExpression
	}
	if fn, ok := ev.compiled[expr]; ok {
		return fn, nil
	}
	fn, err := ev.L.LoadString("return (" + expr + ")")
	if err != nil {
		return nil, fmt.Errorf("scripting: compiling %q: %w", expr, err)
	}
	ev.compiled[expr] = fn
	return fn, nil
}

func toLua(v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	default:
		return lua.LString(fmt.Sprint(x))
	}
}
