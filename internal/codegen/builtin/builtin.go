// Package builtin registers every generator shipped with schemagen.
package builtin

import (
	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/codegen/contract"
	"github.com/okra-platform/schemagen/internal/codegen/graphql"
	"github.com/okra-platform/schemagen/internal/codegen/python"
	"github.com/okra-platform/schemagen/internal/codegen/table"
	"github.com/okra-platform/schemagen/internal/codegen/templates"
	"github.com/okra-platform/schemagen/internal/codegen/typescript"
)

// Registry returns a registry holding all built-in generators
func Registry() *codegen.Registry {
	r := codegen.NewRegistry()
	r.Register(codegen.KindModelPython, func(tmpl *templates.Set) codegen.Generator {
		return python.NewGenerator(tmpl)
	})
	r.Register(codegen.KindModelTS, func(tmpl *templates.Set) codegen.Generator {
		return typescript.NewGenerator(tmpl)
	})
	r.Register(codegen.KindSchemaDoc, func(tmpl *templates.Set) codegen.Generator {
		return graphql.NewGenerator(tmpl)
	})
	r.Register(codegen.KindTable, func(*templates.Set) codegen.Generator {
		return table.NewGenerator()
	})
	r.Register(codegen.KindContract, func(*templates.Set) codegen.Generator {
		return contract.NewGenerator()
	})
	return r
}
