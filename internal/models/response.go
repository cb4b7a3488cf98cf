package models

// Responder is implemented by persisted entities that have a public view.
type Responder[R any] interface {
	ToResponse() R
}

// ShapeAll maps every item to its public view, preserving order.
func ShapeAll[T Responder[R], R any](items []T) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, item.ToResponse())
	}
	return out
}
