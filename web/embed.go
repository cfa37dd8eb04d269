package web

import "embed"

// Content holds the embedded dashboard served at /.
//
//go:embed index.html
var Content embed.FS
