package concept

import "reflect"

// SharedAttributes counts domain attributes present on both concepts with
// equal values.
func SharedAttributes(a, b *Concept) int {
	n := 0
	for k, av := range a.Attributes {
		if bv, ok := b.Attributes[k]; ok && sameValue(av, bv) {
			n++
		}
	}
	return n
}

// SharedRelationTypes counts relation types used by both concepts.
func SharedRelationTypes(a, b *Concept) int {
	n := 0
	for _, rt := range a.relTypes {
		if _, ok := b.edges[rt]; ok {
			n++
		}
	}
	return n
}

// Descriptors returns the attributes used for structural comparison: the
// domain attributes plus kind and category.
func (c *Concept) Descriptors() map[string]any {
	out := make(map[string]any, len(c.Attributes)+2)
	for k, v := range c.Attributes {
		out[k] = v
	}
	out["type"] = string(c.Kind)
	out["category"] = c.Category
	return out
}

// Similarity is the Jaccard overlap of two concepts' descriptors: matching
// key/value pairs over the union of keys.
func Similarity(a, b *Concept) float64 {
	da, db := a.Descriptors(), b.Descriptors()
	union := len(da)
	common := 0
	for k, bv := range db {
		av, ok := da[k]
		if !ok {
			union++
			continue
		}
		if sameValue(av, bv) {
			common++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(common) / float64(union)
}

func sameValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
