package expr

import (
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"
)

// Variables available to rule expressions.
const (
	VarPath         = "path"
	VarRelativePath = "relative_path"
	VarName         = "name"
	VarIsDir        = "is_dir"
)

// Variables available to watch expressions.
const (
	VarFile    = "file"
	VarFSEvent = "fs.event"
)

// Fielder is implemented by values exposed to expressions as maps.
type Fielder interface {
	Fields() map[string]any
}

// EntryVariables declares the variables describing a filesystem entry.
func EntryVariables() cel.EnvOption {
	return cel.Lib(entryLib{})
}

// DynVariables declares a `dyn` variable for each name.
func DynVariables(names ...string) cel.EnvOption {
	return cel.Lib(dynLib(names))
}

// EventVariables declares the variables describing a filesystem event.
func EventVariables() cel.EnvOption {
	return cel.Lib(eventLib{})
}

type entryLib struct{}

func (entryLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Variable(VarPath, cel.StringType),
		cel.Variable(VarRelativePath, cel.StringType),
		cel.Variable(VarName, cel.StringType),
		cel.Variable(VarIsDir, cel.BoolType),
	}
}

func (entryLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

type dynLib []string

func (l dynLib) CompileOptions() []cel.EnvOption {
	opts := make([]cel.EnvOption, 0, len(l))
	for _, name := range l {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}

	return opts
}

func (dynLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

type eventLib struct{}

func (eventLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Variable(VarFile, cel.StringType),
		cel.Variable(VarFSEvent, cel.IntType),
	}
}

func (eventLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

type lib struct{}

func (lib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		ext.Math(),
		ext.Strings(),
		ext.Lists(),

		cel.Constant("fs.CREATE", types.IntType, types.Int(fsnotify.Create)),
		cel.Constant("fs.REMOVE", types.IntType, types.Int(fsnotify.Remove)),
		cel.Constant("fs.WRITE", types.IntType, types.Int(fsnotify.Write)),
		cel.Constant("fs.RENAME", types.IntType, types.Int(fsnotify.Rename)),
		cel.Constant("fs.CHMOD", types.IntType, types.Int(fsnotify.Chmod)),

		// `has` macro and function for checking if an event has specific flags.
		// Example: fs.event.has(fs.CREATE).
		// Example: fs.event.has(fs.CREATE, fs.RENAME, fs.REMOVE).
		cel.Macros(
			cel.ReceiverVarArgMacro("has", hasVarArgMacro),
		),
		cel.Function("@has",
			cel.Overload("@has_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.BoolType,
				cel.BinaryBinding(func(event, flag ref.Val) ref.Val {
					eventValue, errVal := toOp(event, "event")
					if errVal != nil {
						return errVal
					}

					flagValue, errVal := toOp(flag, "flag")
					if errVal != nil {
						return errVal
					}

					return types.Bool(eventValue.Has(flagValue))
				}),
			),
			cel.Overload("@has_int_list_int", []*cel.Type{cel.IntType, cel.ListType(cel.IntType)}, cel.BoolType,
				cel.BinaryBinding(func(event, flags ref.Val) ref.Val {
					eventValue, errVal := toOp(event, "event")
					if errVal != nil {
						return errVal
					}

					flagsList, ok := flags.(traits.Lister)
					if !ok {
						return types.NewErr("has: invalid flags list")
					}

					flagSize, ok := flagsList.Size().(types.Int)
					if !ok {
						return types.NewErr("has: invalid flags list size")
					}

					// Match if the event has any of the specified flags.
					for i := range flagSize {
						flagValue, errVal := toOp(flagsList.Get(i), "flag")
						if errVal != nil {
							return errVal
						}

						if eventValue.Has(flagValue) {
							return types.True
						}
					}

					return types.False
				}),
			),
		),

		// `pathBase` returns the last element of the path.
		// Example: pathBase(path) in ["invoice.pdf", "receipt.pdf"].
		cel.Function("pathBase",
			cel.Overload("path_base", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathBase", filepath.Base)),
			),
		),

		// `pathDir` returns all but the last element of the path.
		// Example: pathDir(path).endsWith("/Downloads").
		cel.Function("pathDir",
			cel.Overload("path_dir", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathDir", filepath.Dir)),
			),
		),

		// `pathExt` returns the file extension of the path.
		// Example: pathExt(path) in [".pdf", ".epub"].
		cel.Function("pathExt",
			cel.Overload("path_ext", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathExt", filepath.Ext)),
			),
		),

		// `pathStem` returns the last element of the path without its extension.
		// Example: pathStem(path).startsWith("Screenshot").
		cel.Function("pathStem",
			cel.Overload("path_stem", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathStem", func(p string) string {
					base := filepath.Base(p)

					return strings.TrimSuffix(base, filepath.Ext(base))
				})),
			),
		),

		// `humanTime` formats a Unix timestamp relative to now.
		// Example: humanTime(dateadded.timestamp) == "3 days ago".
		cel.Function("humanTime",
			cel.Overload("human_time_int", []*cel.Type{cel.IntType}, cel.StringType,
				cel.UnaryBinding(func(ts ref.Val) ref.Val {
					sec, ok := ts.Value().(int64)
					if !ok {
						return types.NewErr("humanTime: invalid timestamp value")
					}

					return types.String(humanize.Time(time.Unix(sec, 0)))
				}),
			),
			cel.Overload("human_time_timestamp", []*cel.Type{cel.TimestampType}, cel.StringType,
				cel.UnaryBinding(func(ts ref.Val) ref.Val {
					t, ok := ts.Value().(time.Time)
					if !ok {
						return types.NewErr("humanTime: invalid timestamp value")
					}

					return types.String(humanize.Time(t))
				}),
			),
		),
	}
}

func (lib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

//nolint:ireturn // Following CEL's function signature.
func stringFunc(name string, fn func(string) string) func(ref.Val) ref.Val {
	return func(v ref.Val) ref.Val {
		s, ok := v.Value().(string)
		if !ok {
			return types.NewErr("%s: invalid string value", name)
		}

		return types.String(fn(s))
	}
}

//nolint:ireturn // Following CEL's function signature.
func toOp(v ref.Val, what string) (fsnotify.Op, ref.Val) {
	i, ok := v.Value().(int64)
	if !ok {
		return 0, types.NewErr("has: invalid %s value", what)
	}

	if i < 0 || i > math.MaxUint32 {
		return 0, types.NewErr("has: %s value out of range", what)
	}

	return fsnotify.Op(i), nil //nolint:gosec // G115: checked above.
}

//nolint:ireturn // Following CEL's function signature.
func hasVarArgMacro(meh cel.MacroExprFactory, target ast.Expr, args []ast.Expr) (ast.Expr, *cel.Error) {
	switch len(args) {
	case 0:
		return nil, meh.NewError(target.ID(), "has() requires at least one argument")
	case 1:
		return meh.NewCall("@has", target, args[0]), nil
	default:
		return meh.NewCall("@has", target, meh.NewList(args...)), nil
	}
}

// ConvertToCELValue converts a Go value to a CEL value.
// Handles common YAML types, [Fielder] values, times and durations, and
// returns null for unsupported types.
//
//nolint:ireturn // Following CEL's function signature.
func ConvertToCELValue(value any) ref.Val {
	switch v := value.(type) {
	case nil:
		return types.NullValue

	case ref.Val:
		return v

	case Fielder:
		return ConvertToCELValue(v.Fields())

	case time.Time:
		return types.Timestamp{Time: v}

	case time.Duration:
		return types.Duration{Duration: v}

	case bool:
		return types.Bool(v)

	case int:
		return types.Int(v)

	case int8:
		return types.Int(int64(v))

	case int16:
		return types.Int(int64(v))

	case int32:
		return types.Int(int64(v))

	case int64:
		return types.Int(v)

	case uint:
		// Check for overflow when converting to int64.
		if v > math.MaxInt64 {
			return types.Double(float64(v))
		}

		return types.Int(int64(v))

	case uint8:
		return types.Int(int64(v))

	case uint16:
		return types.Int(int64(v))

	case uint32:
		return types.Int(int64(v))

	case uint64:
		// Check for overflow when converting to int64.
		if v > math.MaxInt64 {
			return types.Double(float64(v))
		}

		return types.Int(int64(v))

	case float32:
		return types.Double(float64(v))

	case float64:
		return types.Double(v)

	case string:
		return types.String(v)

	case []string:
		return types.NewStringList(types.DefaultTypeAdapter, v)

	case []any:
		celValues := make([]ref.Val, len(v))
		for i, item := range v {
			celValues[i] = ConvertToCELValue(item)
		}

		return types.NewDynamicList(types.DefaultTypeAdapter, celValues)

	case map[any]any:
		celMap := make(map[ref.Val]ref.Val)
		for key, val := range v {
			celMap[ConvertToCELValue(key)] = ConvertToCELValue(val)
		}

		return types.NewDynamicMap(types.DefaultTypeAdapter, celMap)

	case map[string]any:
		celMap := make(map[ref.Val]ref.Val)
		for key, val := range v {
			celMap[types.String(key)] = ConvertToCELValue(val)
		}

		return types.NewDynamicMap(types.DefaultTypeAdapter, celMap)

	default:
		// For unsupported types, return null instead of erroring.
		return types.NullValue
	}
}
