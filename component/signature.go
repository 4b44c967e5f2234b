package component

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/binderkit/errors"
)

// Param is one named function parameter.
type Param struct {
	Name     string
	TypeName string
	Type     wit.Type
}

// Signature describes one exported function in WIT terms.
type Signature struct {
	Name    string
	Params  []Param
	Results []wit.Type
}

var funcPattern = regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

// ParseSignatures extracts function signatures from WIT text of the form
//
//	name: func(a: s32, b: s32) -> s32;
//
// Only scalar types that map onto a single core value are accepted.
func ParseSignatures(witText string) (map[string]*Signature, error) {
	sigs := make(map[string]*Signature)
	for _, match := range funcPattern.FindAllStringSubmatch(witText, -1) {
		sig := &Signature{Name: match[1]}

		if params := strings.TrimSpace(match[2]); params != "" {
			for i, p := range splitParams(params) {
				name, typ, ok := strings.Cut(p, ":")
				if !ok {
					return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
						Path(sig.Name).Detail("parameter %d has no type", i).Build()
				}
				param := Param{Name: strings.TrimSpace(name), TypeName: strings.TrimSpace(typ)}
				t, err := parseScalar(param.TypeName)
				if err != nil {
					return nil, withPath(err, sig.Name, param.Name)
				}
				param.Type = t
				sig.Params = append(sig.Params, param)
			}
		}

		result := strings.TrimSpace(match[3])
		if strings.HasPrefix(result, "(") && strings.HasSuffix(result, ")") {
			result = strings.TrimSpace(result[1 : len(result)-1])
		}
		if result != "" {
			for _, r := range splitParams(result) {
				t, err := parseScalar(r)
				if err != nil {
					return nil, withPath(err, sig.Name, "result")
				}
				sig.Results = append(sig.Results, t)
			}
		}

		if _, dup := sigs[sig.Name]; dup {
			return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
				Path(sig.Name).Detail("function declared twice").Build()
		}
		sigs[sig.Name] = sig
	}

	if len(sigs) == 0 {
		return nil, errors.InvalidInput(errors.PhaseParse, "no functions found in WIT text")
	}
	return sigs, nil
}

// Names returns the function names in sorted order.
func Names(sigs map[string]*Signature) []string {
	names := make([]string, 0, len(sigs))
	for n := range sigs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func withPath(err error, path ...string) error {
	if e, ok := err.(*errors.Error); ok {
		e.Path = path
	}
	return err
}

// splitParams splits a parameter list, handling nested parens.
func splitParams(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0
	for _, ch := range s {
		switch ch {
		case '(', '<':
			depth++
			current.WriteRune(ch)
		case ')', '>':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
				continue
			}
			current.WriteRune(ch)
		default:
			current.WriteRune(ch)
		}
	}
	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}
	return result
}

func parseScalar(s string) (wit.Type, error) {
	t, err := wit.ParseType(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.ParseFailed("WIT type "+s, err)
	}
	if _, err := coreType(t); err != nil {
		return nil, err
	}
	return t, nil
}

// coreType returns the core WebAssembly type a scalar lowers to.
func coreType(t wit.Type) (api.ValueType, error) {
	switch t.(type) {
	case wit.Bool, wit.S8, wit.U8, wit.S16, wit.U16, wit.S32, wit.U32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.S64, wit.U64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	default:
		return 0, errors.Unsupported(errors.PhaseParse, "non-scalar WIT type")
	}
}

// coreTypes returns the core parameter and result types of sig.
func (sig *Signature) coreTypes() (params, results []api.ValueType) {
	for _, p := range sig.Params {
		ct, _ := coreType(p.Type)
		params = append(params, ct)
	}
	for _, r := range sig.Results {
		ct, _ := coreType(r)
		results = append(results, ct)
	}
	return params, results
}
