package specialize

import (
	"fmt"
	"sort"

	"github.com/conduit-lang/weft/internal/descriptor"
)

// AggregateDir is the output directory of the deployment-wide handler set
const AggregateDir = "weftgen"

// AggregateFile is the generated file in AggregateDir
const AggregateFile = FilePrefix + "all.go"

// Aggregate returns a file for package weftgen whose Handlers function
// merges the WeftHandlers of every given package. Import names are
// assigned as h0, h1, ... in import path order.
func (g *Generator) Aggregate(importPaths []string) (string, error) {
	g.reset()
	g.imports[capabilityImport] = ""

	paths := make([]string, len(importPaths))
	copy(paths, importPaths)
	sort.Strings(paths)
	for i, p := range paths {
		g.imports[p] = fmt.Sprintf("h%d", i)
	}

	g.writeHeader(AggregateDir)
	g.writeLine("// Handlers returns every specialized handler of the deployment")
	g.writeLine("func Handlers() capability.Set {")
	g.indent++
	g.writeLine("return capability.Merge(")
	g.indent++
	for i := range paths {
		g.writeLine("h%d.%s(),", i, RegistryFunc)
	}
	g.indent--
	g.writeLine(")")
	g.indent--
	g.writeLine("}")

	return g.format(descriptor.Identity(AggregateDir + ".Handlers"))
}
