package pipeline

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// Source locates a step definition. LineRange is inclusive.
type Source struct {
	File      string `json:"file"`
	LineRange [2]int `json:"line_range"`
}

var funcEnds sync.Map // file -> map[startLine]endLine

// SourceOf returns the location of the function fn, including the line its body ends on
// when the source file is readable.
func SourceOf(fn any) Source {
	value := reflect.ValueOf(fn)
	if value.Kind() != reflect.Func || value.IsNil() {
		return Source{}
	}

	f := runtime.FuncForPC(value.Pointer())
	if f == nil {
		return Source{}
	}

	file, line := f.FileLine(f.Entry())

	return Source{File: RelativePath(file), LineRange: [2]int{line, endLine(file, line)}}
}

// CallerSource returns the location of the caller skip frames above CallerSource.
func CallerSource(skip int) Source {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Source{}
	}

	return Source{File: RelativePath(file), LineRange: [2]int{line, endLine(file, line)}}
}

// RelativePath returns file relative to the working directory when it lies beneath it.
func RelativePath(file string) string {
	wd, err := os.Getwd()
	if err != nil {
		return file
	}

	rel, err := filepath.Rel(wd, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return file
	}

	return rel
}

// endLine finds the last line of the function literal, declaration or call expression
// starting on line. It falls back to line itself.
func endLine(file string, line int) int {
	ends, ok := funcEnds.Load(file)
	if !ok {
		ends, _ = funcEnds.LoadOrStore(file, scan(file))
	}

	if end, ok := ends.(map[int]int)[line]; ok {
		return end
	}

	return line
}

func scan(file string) map[int]int {
	ends := make(map[int]int)

	fset := token.NewFileSet()

	parsed, err := parser.ParseFile(fset, file, nil, parser.SkipObjectResolution)
	if err != nil {
		return ends
	}

	record := func(n ast.Node) {
		start := fset.Position(n.Pos()).Line
		end := fset.Position(n.End()).Line

		if current, ok := ends[start]; !ok || end > current {
			ends[start] = end
		}
	}

	ast.Inspect(parsed, func(n ast.Node) bool {
		switch n.(type) {
		case *ast.FuncDecl, *ast.FuncLit, *ast.CallExpr:
			record(n)
		}

		return true
	})

	return ends
}
