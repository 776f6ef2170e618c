package extract

import (
	"go/ast"
	"go/types"
	"strings"
	"unicode"
	"unicode/utf8"
)

func exprString(expr ast.Expr) string {
	return types.ExprString(expr)
}

// typeKey spells a type expression with package qualifiers replaced by
// import paths, and names declared in the handler's own package qualified
// by pkgPath. "*u.UUID" with u "github.com/google/uuid" becomes
// "*github.com/google/uuid.UUID" whatever the file calls the package.
func typeKey(expr ast.Expr, imports map[string]string, pkgPath string) string {
	var b strings.Builder
	writeTypeKey(&b, expr, imports, pkgPath)
	return b.String()
}

func writeTypeKey(b *strings.Builder, expr ast.Expr, imports map[string]string, pkgPath string) {
	switch x := expr.(type) {
	case *ast.Ident:
		if types.Universe.Lookup(x.Name) == nil {
			b.WriteString(pkgPath)
			b.WriteByte('.')
		}
		b.WriteString(x.Name)
	case *ast.SelectorExpr:
		if id, ok := x.X.(*ast.Ident); ok {
			if p, ok := imports[id.Name]; ok {
				b.WriteString(p)
				b.WriteByte('.')
				b.WriteString(x.Sel.Name)
				return
			}
		}
		b.WriteString(exprString(x))
	case *ast.StarExpr:
		b.WriteByte('*')
		writeTypeKey(b, x.X, imports, pkgPath)
	case *ast.ParenExpr:
		writeTypeKey(b, x.X, imports, pkgPath)
	case *ast.ArrayType:
		b.WriteByte('[')
		if x.Len != nil {
			b.WriteString(exprString(x.Len))
		}
		b.WriteByte(']')
		writeTypeKey(b, x.Elt, imports, pkgPath)
	case *ast.MapType:
		b.WriteString("map[")
		writeTypeKey(b, x.Key, imports, pkgPath)
		b.WriteByte(']')
		writeTypeKey(b, x.Value, imports, pkgPath)
	case *ast.IndexExpr:
		writeTypeKey(b, x.X, imports, pkgPath)
		b.WriteByte('[')
		writeTypeKey(b, x.Index, imports, pkgPath)
		b.WriteByte(']')
	case *ast.IndexListExpr:
		writeTypeKey(b, x.X, imports, pkgPath)
		b.WriteByte('[')
		for i, idx := range x.Indices {
			if i > 0 {
				b.WriteByte(',')
			}
			writeTypeKey(b, idx, imports, pkgPath)
		}
		b.WriteByte(']')
	default:
		b.WriteString(exprString(expr))
	}
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
