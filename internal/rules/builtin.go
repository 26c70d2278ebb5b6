package rules

import (
	_ "embed"
	"sync"
)

// BuiltinSource is the source name recorded on built-in rules.
const BuiltinSource = "builtin"

//go:embed builtin.yaml
var builtinYAML []byte

var (
	builtinOnce sync.Once
	builtinSrc  Source
	builtinErr  error
)

// Builtin returns the embedded default rule set. It panics if the embedded
// document cannot be parsed, which only happens on a broken build.
func Builtin() Source {
	builtinOnce.Do(func() {
		builtinSrc, builtinErr = Parse(BuiltinSource, builtinYAML)
	})
	if builtinErr != nil {
		panic(builtinErr)
	}
	src := builtinSrc
	src.Definitions = append([]Definition(nil), builtinSrc.Definitions...)
	return src
}
