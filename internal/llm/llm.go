// Package llm is the language-model seam. It holds only the request types
// and the Completer interface; package provider builds the implementations.
package llm

import (
	"context"
	"io"
)

// Shape is the kind of reply the caller expects. Providers translate it into
// their JSON-mode hint where one exists.
type Shape int

const (
	ShapeText Shape = iota
	ShapeObject
	ShapeArray
)

// Request is one single-turn completion.
type Request struct {
	System string
	Prompt string
	Shape  Shape
}

// Completer returns the raw model text for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Checker is implemented by completers that can verify their backend at
// startup. Progress goes to w.
type Checker interface {
	Check(ctx context.Context, w io.Writer) error
}
