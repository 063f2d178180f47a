// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package lua

import (
	"github.com/yuin/gopher-lua/ast"
)

// requires returns the distinct module names passed to require("...") in the
// chunk's top-level statements, in order of appearance.
func requires(chunk []ast.Stmt) []string {
	var deps []string
	seen := make(map[string]struct{})

	var visit func(ast.Expr)
	visit = func(e ast.Expr) {
		switch e := e.(type) {
		case *ast.FuncCallExpr:
			if name, ok := requireTarget(e); ok {
				if _, dup := seen[name]; !dup {
					seen[name] = struct{}{}
					deps = append(deps, name)
				}
				return
			}
			visit(e.Func)
			visit(e.Receiver)
			for _, arg := range e.Args {
				visit(arg)
			}
		case *ast.AttrGetExpr:
			visit(e.Object)
			visit(e.Key)
		}
	}

	for _, stmt := range chunk {
		switch s := stmt.(type) {
		case *ast.LocalAssignStmt:
			for _, e := range s.Exprs {
				visit(e)
			}
		case *ast.AssignStmt:
			for _, e := range s.Rhs {
				visit(e)
			}
		case *ast.FuncCallStmt:
			visit(s.Expr)
		case *ast.ReturnStmt:
			for _, e := range s.Exprs {
				visit(e)
			}
		}
	}
	return deps
}

func requireTarget(call *ast.FuncCallExpr) (string, bool) {
	ident, ok := call.Func.(*ast.IdentExpr)
	if !ok || ident.Value != "require" || len(call.Args) != 1 {
		return "", false
	}
	name, ok := call.Args[0].(*ast.StringExpr)
	if !ok {
		return "", false
	}
	return name.Value, true
}
