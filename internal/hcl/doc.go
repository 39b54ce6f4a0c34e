// Package hcl provides the HCL implementation of program.Loader.
//
// A program file holds one or more `program` blocks whose `var` and `thread`
// blocks are merged into a single model, plus an optional `checker` block
// with run settings:
//
//	checker {
//	  max_iterations = 100
//	  policy         = "fifo"
//	}
//
//	program "counter" {
//	  var "x" { initial = 0 }
//
//	  thread "main" {
//	    op "spawn" { thread = "inc" }
//	    op "join"  { thread = "inc" }
//	    op "read"  {
//	      var  = "x"
//	      into = "r"
//	    }
//	    op "assert" {
//	      condition = r == 1
//	      message   = "lost increment"
//	    }
//	  }
//
//	  thread "inc" {
//	    op "fetch_add" {
//	      var   = "x"
//	      value = 1
//	    }
//	  }
//	}
//
// The `value` and `condition` attributes stay unevaluated; the runtime
// evaluates them against the registers of the running thread.
package hcl
