// Package query is the predicate translator: it lowers a small,
// explicitly-built boolean expression tree over record fields into a
// parameterized SQL WHERE fragment. The tree is a tagged variant
// (ExprKind plus a flat Expr struct) rather than a visitor hierarchy,
// per the same "avoid virtual dispatch for a closed node set" idiom
// the rest of this module follows.
package query

import (
	"fmt"
	"strings"

	"github.com/kestrelrow/rowkeep/internal/identifier"
	"github.com/kestrelrow/rowkeep/internal/rkerrors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ExprKind identifies the shape of an Expr node.
type ExprKind int

const (
	KindField ExprKind = iota
	KindConst
	KindNot
	KindNegate
	KindAdd
	KindSub
	KindMul
	KindDiv
	KindMod
	KindEq
	KindNe
	KindLt
	KindLe
	KindGt
	KindGe
	KindAnd
	KindOr
	KindXor
	KindCoalesce
	KindIsNull
	KindIsNotNull
	KindStartsWith
	KindEndsWith
	KindContains
	KindIn
	KindToLower
	KindToUpper
	KindTrim
	KindLength
	KindSubstring
	KindCond // CASE WHEN cond THEN then ELSE else END
)

func (k ExprKind) String() string {
	names := [...]string{
		"Field", "Const", "Not", "Negate", "Add", "Sub", "Mul", "Div", "Mod",
		"Eq", "Ne", "Lt", "Le", "Gt", "Ge", "And", "Or", "Xor", "Coalesce",
		"IsNull", "IsNotNull", "StartsWith", "EndsWith", "Contains", "In",
		"ToLower", "ToUpper", "Trim", "Length", "Substring", "Cond",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Expr is one node of a predicate tree. Field/Const carry their
// payload directly; every other kind carries its operands in
// Children, in the fixed order each combinator below documents.
type Expr struct {
	Kind            ExprKind
	Field           string
	Value           any
	CaseInsensitive bool
	Children        []*Expr
}

func Field(name string) *Expr { return &Expr{Kind: KindField, Field: name} }
func Val(v any) *Expr         { return &Expr{Kind: KindConst, Value: v} }

func Not(e *Expr) *Expr    { return &Expr{Kind: KindNot, Children: []*Expr{e}} }
func Negate(e *Expr) *Expr { return &Expr{Kind: KindNegate, Children: []*Expr{e}} }

func (e *Expr) Add(other *Expr) *Expr { return &Expr{Kind: KindAdd, Children: []*Expr{e, other}} }
func (e *Expr) Sub(other *Expr) *Expr { return &Expr{Kind: KindSub, Children: []*Expr{e, other}} }
func (e *Expr) Mul(other *Expr) *Expr { return &Expr{Kind: KindMul, Children: []*Expr{e, other}} }
func (e *Expr) Div(other *Expr) *Expr { return &Expr{Kind: KindDiv, Children: []*Expr{e, other}} }
func (e *Expr) Mod(other *Expr) *Expr { return &Expr{Kind: KindMod, Children: []*Expr{e, other}} }

// EQ builds a case-sensitive equality; call EQNoCase for the
// COLLATE NOCASE variant. The connection's CaseInsensitiveStrings
// option does not switch EQ to EQNoCase.
func (e *Expr) EQ(other *Expr) *Expr { return &Expr{Kind: KindEq, Children: []*Expr{e, other}} }
func (e *Expr) EQNoCase(other *Expr) *Expr {
	return &Expr{Kind: KindEq, CaseInsensitive: true, Children: []*Expr{e, other}}
}
func (e *Expr) NE(other *Expr) *Expr { return &Expr{Kind: KindNe, Children: []*Expr{e, other}} }
func (e *Expr) LT(other *Expr) *Expr { return &Expr{Kind: KindLt, Children: []*Expr{e, other}} }
func (e *Expr) LE(other *Expr) *Expr { return &Expr{Kind: KindLe, Children: []*Expr{e, other}} }
func (e *Expr) GT(other *Expr) *Expr { return &Expr{Kind: KindGt, Children: []*Expr{e, other}} }
func (e *Expr) GE(other *Expr) *Expr { return &Expr{Kind: KindGe, Children: []*Expr{e, other}} }

func (e *Expr) And(other *Expr) *Expr { return &Expr{Kind: KindAnd, Children: []*Expr{e, other}} }
func (e *Expr) Or(other *Expr) *Expr  { return &Expr{Kind: KindOr, Children: []*Expr{e, other}} }
func (e *Expr) Xor(other *Expr) *Expr { return &Expr{Kind: KindXor, Children: []*Expr{e, other}} }

func (e *Expr) Coalesce(other *Expr) *Expr {
	return &Expr{Kind: KindCoalesce, Children: []*Expr{e, other}}
}

func (e *Expr) IsNull() *Expr    { return &Expr{Kind: KindIsNull, Children: []*Expr{e}} }
func (e *Expr) IsNotNull() *Expr { return &Expr{Kind: KindIsNotNull, Children: []*Expr{e}} }

func (e *Expr) StartsWith(other *Expr) *Expr {
	return &Expr{Kind: KindStartsWith, Children: []*Expr{e, other}}
}
func (e *Expr) EndsWith(other *Expr) *Expr {
	return &Expr{Kind: KindEndsWith, Children: []*Expr{e, other}}
}
func (e *Expr) Contains(other *Expr) *Expr {
	return &Expr{Kind: KindContains, Children: []*Expr{e, other}}
}

// In builds a "field IN (seq)" comparison; seq's Value must be a Go
// slice, folded into one parameter per element.
func (e *Expr) In(seq *Expr) *Expr { return &Expr{Kind: KindIn, Children: []*Expr{e, seq}} }

func (e *Expr) ToLower() *Expr  { return &Expr{Kind: KindToLower, Children: []*Expr{e}} }
func (e *Expr) ToUpper() *Expr  { return &Expr{Kind: KindToUpper, Children: []*Expr{e}} }
func (e *Expr) Trim() *Expr     { return &Expr{Kind: KindTrim, Children: []*Expr{e}} }
func (e *Expr) Length() *Expr   { return &Expr{Kind: KindLength, Children: []*Expr{e}} }
func (e *Expr) Substring(start, length *Expr) *Expr {
	return &Expr{Kind: KindSubstring, Children: []*Expr{e, start, length}}
}

// IfThenElse builds a CASE WHEN cond THEN then ELSE els END expression.
func IfThenElse(cond, then, els *Expr) *Expr {
	return &Expr{Kind: KindCond, Children: []*Expr{cond, then, els}}
}

var binaryOps = map[ExprKind]string{
	KindAdd: "+", KindSub: "-", KindMul: "*", KindDiv: "/", KindMod: "%",
	KindEq: "=", KindNe: "<>", KindLt: "<", KindLe: "<=", KindGt: ">", KindGe: ">=",
	KindAnd: "AND", KindOr: "OR", KindXor: "IS NOT", // Xor over booleans: a IS NOT b
}

// Translate walks e and produces a parameterized SQL fragment plus
// its ordered argument list. An unhandled ExprKind fails
// *rkerrors.UntranslatableExpressionError.
func Translate(e *Expr) (string, []any, error) {
	var b strings.Builder
	var args []any
	if err := translate(&b, &args, e); err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func translate(b *strings.Builder, args *[]any, e *Expr) error {
	switch e.Kind {
	case KindField:
		b.WriteString(identifier.Quote(e.Field))
		return nil

	case KindConst:
		b.WriteString("?")
		*args = append(*args, e.Value)
		return nil

	case KindNot:
		b.WriteString("NOT (")
		if err := translate(b, args, e.Children[0]); err != nil {
			return err
		}
		b.WriteString(")")
		return nil

	case KindNegate:
		b.WriteString("-(")
		if err := translate(b, args, e.Children[0]); err != nil {
			return err
		}
		b.WriteString(")")
		return nil

	case KindIsNull, KindIsNotNull:
		b.WriteString("(")
		if err := translate(b, args, e.Children[0]); err != nil {
			return err
		}
		if e.Kind == KindIsNull {
			b.WriteString(" IS NULL)")
		} else {
			b.WriteString(" IS NOT NULL)")
		}
		return nil

	case KindToLower, KindToUpper, KindTrim, KindLength:
		// A closed-over string constant is folded on the Go side with
		// locale-aware casing rather than shipped to SQLite's ASCII-only
		// LOWER/UPPER; only a field reference needs the SQL function
		// form, since its value isn't known until the row is fetched.
		if s, ok := constString(e.Children[0]); ok {
			*args = append(*args, foldConstString(e.Kind, s))
			b.WriteString("?")
			return nil
		}

		fn := map[ExprKind]string{
			KindToLower: "LOWER", KindToUpper: "UPPER", KindTrim: "TRIM", KindLength: "LENGTH",
		}[e.Kind]
		b.WriteString(fn)
		b.WriteString("(")
		if err := translate(b, args, e.Children[0]); err != nil {
			return err
		}
		b.WriteString(")")
		return nil

	case KindSubstring:
		b.WriteString("SUBSTR(")
		if err := translate(b, args, e.Children[0]); err != nil {
			return err
		}
		b.WriteString(", ")
		if err := translate(b, args, e.Children[1]); err != nil {
			return err
		}
		b.WriteString(", ")
		if err := translate(b, args, e.Children[2]); err != nil {
			return err
		}
		b.WriteString(")")
		return nil

	case KindStartsWith, KindEndsWith, KindContains:
		return translateLike(b, args, e)

	case KindIn:
		return translateIn(b, args, e)

	case KindCoalesce:
		b.WriteString("COALESCE(")
		if err := translate(b, args, e.Children[0]); err != nil {
			return err
		}
		b.WriteString(", ")
		if err := translate(b, args, e.Children[1]); err != nil {
			return err
		}
		b.WriteString(")")
		return nil

	case KindCond:
		b.WriteString("CASE WHEN ")
		if err := translate(b, args, e.Children[0]); err != nil {
			return err
		}
		b.WriteString(" THEN ")
		if err := translate(b, args, e.Children[1]); err != nil {
			return err
		}
		b.WriteString(" ELSE ")
		if err := translate(b, args, e.Children[2]); err != nil {
			return err
		}
		b.WriteString(" END")
		return nil

	default:
		if op, ok := binaryOps[e.Kind]; ok {
			return translateBinary(b, args, e, op)
		}
		return &rkerrors.UntranslatableExpressionError{Kind: e.Kind.String()}
	}
}

func translateBinary(b *strings.Builder, args *[]any, e *Expr, op string) error {
	// A null comparison on either side of Eq/Ne emits IS [NOT] NULL
	// rather than "= ?" against a bound nil.
	if (e.Kind == KindEq || e.Kind == KindNe) && (isNilConst(e.Children[0]) || isNilConst(e.Children[1])) {
		operand := e.Children[0]
		if isNilConst(operand) {
			operand = e.Children[1]
		}
		b.WriteString("(")
		if err := translate(b, args, operand); err != nil {
			return err
		}
		if e.Kind == KindEq {
			b.WriteString(" IS NULL)")
		} else {
			b.WriteString(" IS NOT NULL)")
		}
		return nil
	}

	b.WriteString("(")
	if err := translate(b, args, e.Children[0]); err != nil {
		return err
	}
	b.WriteString(" ")
	b.WriteString(op)
	b.WriteString(" ")
	if err := translate(b, args, e.Children[1]); err != nil {
		return err
	}
	if e.Kind == KindEq && e.CaseInsensitive {
		b.WriteString(" COLLATE NOCASE")
	}
	b.WriteString(")")
	return nil
}

func translateLike(b *strings.Builder, args *[]any, e *Expr) error {
	if e.Children[1].Kind != KindConst {
		return &rkerrors.UntranslatableExpressionError{Kind: e.Kind.String() + " (non-constant pattern)"}
	}
	s, ok := e.Children[1].Value.(string)
	if !ok {
		return &rkerrors.UntranslatableExpressionError{Kind: e.Kind.String() + " (non-string pattern)"}
	}
	escaped := escapeLike(s)

	var pattern string
	switch e.Kind {
	case KindStartsWith:
		pattern = escaped + "%"
	case KindEndsWith:
		pattern = "%" + escaped
	case KindContains:
		pattern = "%" + escaped + "%"
	}

	b.WriteString("(")
	if err := translate(b, args, e.Children[0]); err != nil {
		return err
	}
	b.WriteString(" LIKE ? ESCAPE '\\')")
	*args = append(*args, pattern)
	return nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func translateIn(b *strings.Builder, args *[]any, e *Expr) error {
	seq := e.Children[1]
	if seq.Kind != KindConst {
		return &rkerrors.UntranslatableExpressionError{Kind: "In (non-constant sequence)"}
	}
	values, err := toSlice(seq.Value)
	if err != nil {
		return &rkerrors.UntranslatableExpressionError{Kind: "In (not a sequence)"}
	}

	if err := translate(b, args, e.Children[0]); err != nil {
		return err
	}
	b.WriteString(" IN (")
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
		*args = append(*args, v)
	}
	b.WriteString(")")
	return nil
}

func isNilConst(e *Expr) bool {
	return e.Kind == KindConst && e.Value == nil
}

func constString(e *Expr) (string, bool) {
	if e.Kind != KindConst {
		return "", false
	}
	s, ok := e.Value.(string)
	return s, ok
}

var (
	lowerCaser = cases.Lower(language.Und)
	upperCaser = cases.Upper(language.Und)
)

func foldConstString(kind ExprKind, s string) any {
	switch kind {
	case KindToLower:
		return lowerCaser.String(s)
	case KindToUpper:
		return upperCaser.String(s)
	case KindTrim:
		return strings.TrimSpace(s)
	case KindLength:
		return int64(len([]rune(s)))
	default:
		return s
	}
}

func toSlice(v any) ([]any, error) {
	switch s := v.(type) {
	case []any:
		return s, nil
	case []int:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, nil
	case []int64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, nil
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, nil
	default:
		return nil, fmt.Errorf("query: %T is not a supported In() sequence type", v)
	}
}
