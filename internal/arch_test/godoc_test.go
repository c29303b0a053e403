package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"
)

// undocumented lists exported declarations in f that carry no doc comment.
// Specs inside a documented group count as documented. Methods need docs
// only when their receiver type is exported.
func undocumented(f *ast.File) []string {
	var out []string
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if !d.Name.IsExported() || d.Doc != nil {
				continue
			}
			if d.Recv != nil {
				recv := receiverName(d.Recv.List[0].Type)
				if !ast.IsExported(recv) {
					continue
				}
				out = append(out, recv+"."+d.Name.Name)
				continue
			}
			out = append(out, d.Name.Name)
		case *ast.GenDecl:
			if d.Tok == token.IMPORT || (d.Lparen.IsValid() && d.Doc != nil) {
				continue
			}
			for _, spec := range d.Specs {
				for _, name := range specNames(spec) {
					if ast.IsExported(name) && !specDocumented(d, spec) {
						out = append(out, name)
					}
				}
			}
		}
	}
	return out
}

func specNames(spec ast.Spec) []string {
	switch s := spec.(type) {
	case *ast.TypeSpec:
		return []string{s.Name.Name}
	case *ast.ValueSpec:
		names := make([]string, len(s.Names))
		for i, n := range s.Names {
			names[i] = n.Name
		}
		return names
	}
	return nil
}

func specDocumented(d *ast.GenDecl, spec ast.Spec) bool {
	if !d.Lparen.IsValid() && d.Doc != nil {
		return true
	}
	switch s := spec.(type) {
	case *ast.TypeSpec:
		return s.Doc != nil
	case *ast.ValueSpec:
		return s.Doc != nil || s.Comment != nil
	}
	return false
}

func receiverName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.StarExpr:
		return receiverName(e.X)
	case *ast.IndexExpr:
		return receiverName(e.X)
	case *ast.Ident:
		return e.Name
	}
	return ""
}

func TestExportedSymbolsDocumented(t *testing.T) {
	t.Parallel()
	for _, p := range packages(t) {
		for _, file := range p.sortedFiles() {
			for _, name := range undocumented(p.Files[file]) {
				t.Errorf("%s/%s: exported %s has no doc comment", p.Name, file, name)
			}
		}
	}
}

func TestPackagesHaveDocComment(t *testing.T) {
	t.Parallel()
	for _, p := range packages(t) {
		documented := false
		for _, f := range p.Files {
			if f.Doc != nil && strings.HasPrefix(f.Doc.Text(), "Package "+p.Name+" ") {
				documented = true
				break
			}
		}
		if !documented {
			t.Errorf("internal/%s has no package comment", p.Name)
		}
	}
}

func TestUndocumented(t *testing.T) {
	t.Parallel()
	src := `package phase

// Documented is fine.
type Documented struct{}

type Bare struct{}

func (Bare) Method() {}

func (d Documented) Also() {}

type hidden struct{}

func (hidden) Exported() {}

// Group docs cover every spec.
const (
	A = 1
	B = 2
)

var (
	C = 3 // trailing comment
	D = 4
)

func Loose() {}
`
	f, err := parser.ParseFile(token.NewFileSet(), "sample.go", src, parser.ParseComments)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(undocumented(f), ",")
	if want := "Bare,Bare.Method,Documented.Also,D,Loose"; got != want {
		t.Errorf("undocumented = %q, want %q", got, want)
	}
}
