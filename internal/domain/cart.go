package domain

import "sort"

type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Cart is held by the caller until it is committed. Adding a product that is
// already in the cart sums into the existing line.
type Cart struct {
	lines map[int64]int
	order []int64
}

func NewCart(lines ...CartLine) *Cart {
	c := &Cart{}
	for _, line := range lines {
		c.Add(line.ProductID, line.Quantity)
	}
	return c
}

func (c *Cart) Add(productID int64, qty int) {
	if c.lines == nil {
		c.lines = make(map[int64]int)
	}
	if _, ok := c.lines[productID]; !ok {
		c.order = append(c.order, productID)
	}
	c.lines[productID] += qty
}

func (c *Cart) Remove(productID int64) {
	if _, ok := c.lines[productID]; !ok {
		return
	}
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cart) Quantity(productID int64) int {
	if c == nil {
		return 0
	}
	return c.lines[productID]
}

// Lines returns the merged lines in the order products were first added.
func (c *Cart) Lines() []CartLine {
	if c == nil {
		return nil
	}
	out := make([]CartLine, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, CartLine{ProductID: id, Quantity: c.lines[id]})
	}
	return out
}

func (c *Cart) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

func (c *Cart) Clear() {
	c.lines = nil
	c.order = nil
}

// MergeLines sums duplicate products and returns the lines sorted by product id.
func MergeLines(lines []CartLine) []CartLine {
	agg := make(map[int64]int, len(lines))
	for _, line := range lines {
		agg[line.ProductID] += line.Quantity
	}
	merged := make([]CartLine, 0, len(agg))
	for id, qty := range agg {
		merged = append(merged, CartLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged
}
