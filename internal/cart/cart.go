// Package cart implements variant-aware cart aggregation. A cart is an
// ordered list of lines keyed by (product, color, size); all mutation paths
// go through Add and SetQuantity so a key never appears twice.
package cart

import "shoplab/api/internal/catalog"

// Line is one cart entry. Color and size are optional variant keys; two
// lines for the same product with different variants are distinct.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
}

func sameKey(l Line, productID, color, size string) bool {
	return l.ProductID == productID && l.Color == color && l.Size == size
}

// Add merges quantity into the line matching (productID, color, size), or
// appends a new line preserving first-insertion order. Quantities below 1
// coerce to 1: the storefront forgives malformed quantity input rather than
// rejecting the add.
func Add(lines []Line, productID string, quantity int, color, size string) []Line {
	if quantity < 1 {
		quantity = 1
	}
	for i := range lines {
		if sameKey(lines[i], productID, color, size) {
			lines[i].Quantity += quantity
			return lines
		}
	}
	return append(lines, Line{ProductID: productID, Quantity: quantity, Color: color, Size: size})
}

// SetQuantity replaces the quantity for the matching key. A quantity of zero
// or less removes the line. A key with no matching line is a no-op.
func SetQuantity(lines []Line, productID string, quantity int, color, size string) []Line {
	for i := range lines {
		if !sameKey(lines[i], productID, color, size) {
			continue
		}
		if quantity <= 0 {
			return append(lines[:i:i], lines[i+1:]...)
		}
		lines[i].Quantity = quantity
		return lines
	}
	return lines
}

// Item is one resolved snapshot row.
type Item struct {
	Product  catalog.Product
	Quantity int
	Subtotal int
	Color    string
	Size     string
}

// Snapshot is the derived checkout view: cart lines joined against the
// catalog. It is recomputed on demand and never stored.
type Snapshot struct {
	Items     []Item
	Total     int
	ItemCount int
}

// BuildSnapshot joins lines against byID. Lines whose product no longer
// resolves are dropped: the catalog is the source of truth, the cart is
// advisory.
func BuildSnapshot(lines []Line, byID map[string]catalog.Product) Snapshot {
	var snap Snapshot
	for _, line := range lines {
		product, ok := byID[line.ProductID]
		if !ok {
			continue
		}
		subtotal := product.Price * line.Quantity
		snap.Items = append(snap.Items, Item{
			Product:  product,
			Quantity: line.Quantity,
			Subtotal: subtotal,
			Color:    line.Color,
			Size:     line.Size,
		})
		snap.Total += subtotal
		snap.ItemCount += line.Quantity
	}
	return snap
}

// IndexProducts builds the lookup map BuildSnapshot joins against.
func IndexProducts(products []catalog.Product) map[string]catalog.Product {
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID
}
