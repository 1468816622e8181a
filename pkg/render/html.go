package render

import (
	"github.com/matzehuels/marginalia/pkg/dom"
)

// RenderHTML serialises the document as it stands after a pass.
func RenderHTML(doc *dom.Document) ([]byte, error) {
	return doc.HTML()
}
