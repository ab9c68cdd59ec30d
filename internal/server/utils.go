package server

import "html/template"

// safeHTML marks a fragment rendered by mapview as trusted. Every user
// supplied value in it has already been escaped.
func safeHTML(s string) template.HTML {
	return template.HTML(s) // #nosec G203 -- escaped by mapview.Render
}
