package templates

import (
	"embed"
	"io/fs"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// BuiltinRoot returns the root holding the templates bundled with docforge.
func BuiltinRoot() Root {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		// The embedded directory always exists.
		panic(err)
	}
	return FSRoot(BuiltinSource, sub)
}
