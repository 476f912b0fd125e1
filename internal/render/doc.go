// Package render turns a settled document into the text artifacts the game
// client consumes: a layout XML describing where every layer sits, and an
// ActionScript wrapper class with a typed member per named component.
//
// Renderers only read the document. They must not run while a change is
// being applied.
package render
