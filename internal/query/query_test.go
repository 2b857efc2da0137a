package query

import (
	"strings"
	"testing"
)

type person struct {
	ID    int64  `db:"id,pk,autoincrement"`
	Name  string `db:"name"`
	Email string `db:"email"`
	Age   int    `db:"age"`
}

func TestTranslateFieldComparison(t *testing.T) {
	e := Field("Age").GT(Val(21))
	sqlText, args, err := Translate(e)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if sqlText != `("Age" > ?)` {
		t.Errorf("sql = %q", sqlText)
	}
	if len(args) != 1 || args[0] != 21 {
		t.Errorf("args = %v", args)
	}
}

func TestTranslateAndOr(t *testing.T) {
	e := Field("Age").GE(Val(18)).And(Field("Age").LE(Val(65)))
	sqlText, args, err := Translate(e)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	want := `(("Age" >= ?) AND ("Age" <= ?))`
	if sqlText != want {
		t.Errorf("sql = %q, want %q", sqlText, want)
	}
	if len(args) != 2 || args[0] != 18 || args[1] != 65 {
		t.Errorf("args = %v", args)
	}
}

func TestTranslateEqualityAgainstNilEmitsIsNull(t *testing.T) {
	e := Field("Email").EQ(Val(nil))
	sqlText, args, err := Translate(e)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if sqlText != `("Email" IS NULL)` {
		t.Errorf("sql = %q", sqlText)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}

	ne := Field("Email").NE(Val(nil))
	sqlText, _, err = Translate(ne)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if sqlText != `("Email" IS NOT NULL)` {
		t.Errorf("sql = %q", sqlText)
	}
}

func TestTranslateCaseInsensitiveEquality(t *testing.T) {
	e := Field("Name").EQNoCase(Val("ALICE"))
	sqlText, _, err := Translate(e)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if sqlText != `("Name" = ? COLLATE NOCASE)` {
		t.Errorf("sql = %q", sqlText)
	}
}

func TestTranslateIsNullDirect(t *testing.T) {
	sqlText, _, err := Translate(Field("Email").IsNull())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if sqlText != `("Email" IS NULL)` {
		t.Errorf("sql = %q", sqlText)
	}
}

func TestTranslateStartsWithEscapesWildcards(t *testing.T) {
	e := Field("Name").StartsWith(Val("100%_off"))
	sqlText, args, err := Translate(e)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.Contains(sqlText, "LIKE ? ESCAPE '\\'") {
		t.Errorf("sql = %q, want a LIKE clause", sqlText)
	}
	if len(args) != 1 || args[0] != `100\%\_off%` {
		t.Errorf("args = %v", args)
	}
}

func TestTranslateContainsWrapsWithWildcards(t *testing.T) {
	e := Field("Name").Contains(Val("bob"))
	_, args, err := Translate(e)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if args[0] != "%bob%" {
		t.Errorf("args[0] = %v, want %%bob%%", args[0])
	}
}

func TestTranslateIn(t *testing.T) {
	e := Field("ID").In(Val([]int64{1, 2, 3}))
	sqlText, args, err := Translate(e)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if sqlText != `"ID" IN (?, ?, ?)` {
		t.Errorf("sql = %q", sqlText)
	}
	if len(args) != 3 || args[2] != int64(3) {
		t.Errorf("args = %v", args)
	}
}

func TestTranslateInRejectsNonSequence(t *testing.T) {
	e := Field("ID").In(Val(42))
	if _, _, err := Translate(e); err == nil {
		t.Fatal("expected an UntranslatableExpressionError for a non-sequence In() value")
	}
}

func TestTranslateStringFunctions(t *testing.T) {
	sqlText, _, err := Translate(Field("Name").ToLower())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if sqlText != `LOWER("Name")` {
		t.Errorf("sql = %q", sqlText)
	}

	sqlText, _, err = Translate(Field("Name").Length())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if sqlText != `LENGTH("Name")` {
		t.Errorf("sql = %q", sqlText)
	}
}

func TestTranslateSubstring(t *testing.T) {
	e := Field("Name").Substring(Val(1), Val(3))
	sqlText, args, err := Translate(e)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if sqlText != `SUBSTR("Name", ?, ?)` {
		t.Errorf("sql = %q", sqlText)
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}
}

func TestTranslateConditional(t *testing.T) {
	e := IfThenElse(Field("Age").GE(Val(18)), Val("adult"), Val("minor"))
	sqlText, args, err := Translate(e)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if sqlText != `CASE WHEN ("Age" >= ?) THEN ? ELSE ? END` {
		t.Errorf("sql = %q", sqlText)
	}
	if len(args) != 3 {
		t.Errorf("args = %v", args)
	}
}

func TestTranslateNot(t *testing.T) {
	sqlText, _, err := Translate(Not(Field("Active").EQ(Val(true))))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if sqlText != `NOT (("Active" = ?))` {
		t.Errorf("sql = %q", sqlText)
	}
}

func TestTranslateUntranslatableKind(t *testing.T) {
	bogus := &Expr{Kind: ExprKind(9999)}
	if _, _, err := Translate(bogus); err == nil {
		t.Fatal("expected an UntranslatableExpressionError for an unknown ExprKind")
	}
}

func TestFromStructFoldsNonZeroFields(t *testing.T) {
	pattern := person{Name: "Alice", Age: 30}
	e, err := FromStruct(&pattern)
	if err != nil {
		t.Fatalf("FromStruct: %v", err)
	}
	sqlText, args, err := Translate(e)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.Contains(sqlText, `"name" = ?`) || !strings.Contains(sqlText, `"age" = ?`) {
		t.Errorf("sql = %q", sqlText)
	}
	if !strings.Contains(sqlText, "AND") {
		t.Errorf("expected the two terms ANDed together, got %q", sqlText)
	}
	foundAlice, found30 := false, false
	for _, a := range args {
		if a == "Alice" {
			foundAlice = true
		}
		if a == 30 {
			found30 = true
		}
	}
	if !foundAlice || !found30 {
		t.Errorf("args = %v, want Alice and 30", args)
	}
}

func TestFromStructRejectsAllZeroPattern(t *testing.T) {
	if _, err := FromStruct(&person{}); err == nil {
		t.Fatal("expected an error for an all-zero pattern struct")
	}
}

func TestFromStructRejectsNilPointer(t *testing.T) {
	var p *person
	if _, err := FromStruct(p); err == nil {
		t.Fatal("expected an error for a nil pattern pointer")
	}
}
