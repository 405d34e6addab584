package lattice

import "github.com/google/btree"

const orderedSetDegree = 8

// OrderedSet is the sorted, duplicate-free sequence lattice. The carrier is a
// B-tree so that Merge is an ordered union and Reveal iterates in order.
type OrderedSet struct {
	tree *btree.BTreeG[string]
}

// NewOrderedSet builds an ordered set from the given elements.
func NewOrderedSet(elems ...string) OrderedSet {
	t := btree.NewOrderedG[string](orderedSetDegree)
	for _, e := range elems {
		t.ReplaceOrInsert(e)
	}
	return OrderedSet{tree: t}
}

// Merge returns the ordered union of the two sets without mutating either.
func (o OrderedSet) Merge(other OrderedSet) OrderedSet {
	var out *btree.BTreeG[string]
	if o.tree != nil {
		out = o.tree.Clone()
	} else {
		out = btree.NewOrderedG[string](orderedSetDegree)
	}
	if other.tree != nil {
		other.tree.Ascend(func(e string) bool {
			out.ReplaceOrInsert(e)
			return true
		})
	}
	return OrderedSet{tree: out}
}

// Insert adds an element in place.
func (o OrderedSet) Insert(e string) {
	if o.tree != nil {
		o.tree.ReplaceOrInsert(e)
	}
}

// Reveal returns the elements in ascending order.
func (o OrderedSet) Reveal() []string {
	if o.tree == nil {
		return nil
	}
	out := make([]string, 0, o.tree.Len())
	o.tree.Ascend(func(e string) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Len returns the element count.
func (o OrderedSet) Len() int {
	if o.tree == nil {
		return 0
	}
	return o.tree.Len()
}

// Size reports the total byte cost of the elements.
func (o OrderedSet) Size() int {
	total := 0
	if o.tree != nil {
		o.tree.Ascend(func(e string) bool {
			total += len(e)
			return true
		})
	}
	return total
}
