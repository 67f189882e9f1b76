package chrome

import (
	"fmt"

	"html2image/internal/domain"
)

// fontsReadyJS resolves once every web font used by the document has loaded.
const fontsReadyJS = `document.fonts.ready.then(() => true)`

// boxFromQuad turns a four-point border quad into its axis-aligned bounding box.
func boxFromQuad(quad []float64) (domain.BoundingBox, error) {
	if len(quad) < 8 {
		return domain.BoundingBox{}, fmt.Errorf("%w: border quad has %d coordinates", domain.ErrGeometryUnavailable, len(quad))
	}
	minX, maxX := quad[0], quad[0]
	minY, maxY := quad[1], quad[1]
	for i := 2; i+1 < 8; i += 2 {
		minX = min(minX, quad[i])
		maxX = max(maxX, quad[i])
		minY = min(minY, quad[i+1])
		maxY = max(maxY, quad[i+1])
	}
	if maxX-minX <= 0 || maxY-minY <= 0 {
		return domain.BoundingBox{}, fmt.Errorf("%w: element has an empty box", domain.ErrGeometryUnavailable)
	}
	return domain.BoundingBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, nil
}

func elementNotFound(selector string) error {
	return fmt.Errorf("%w: no element matches %q", domain.ErrElementNotFound, selector)
}
