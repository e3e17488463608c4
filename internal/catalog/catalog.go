// Package catalog reads the product catalog from a CSV file on a
// read-through basis: every call re-reads the file, so price edits take
// effect without a restart.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("product not found")

type Product struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Price  int      `json:"price"`
	Image  string   `json:"image"`
	Colors []string `json:"colors"`
	Sizes  []string `json:"sizes"`
}

// Store is the read interface the experiment core needs from the catalog.
type Store interface {
	List() ([]Product, error)
	Lookup(id string) (Product, error)
}

// FileStore reads products from a CSV file with the header
// id,name,price,image,colors,sizes. Variant lists are '|'-separated.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) List() ([]Product, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"id", "name", "price"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("catalog missing %q column", required)
		}
	}

	var products []Product
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog row: %w", err)
		}
		price, err := strconv.Atoi(strings.TrimSpace(field(record, col, "price")))
		if err != nil {
			return nil, fmt.Errorf("catalog price for %q: %w", field(record, col, "id"), err)
		}
		products = append(products, Product{
			ID:     strings.TrimSpace(field(record, col, "id")),
			Name:   field(record, col, "name"),
			Price:  price,
			Image:  field(record, col, "image"),
			Colors: splitVariants(field(record, col, "colors")),
			Sizes:  splitVariants(field(record, col, "sizes")),
		})
	}
	return products, nil
}

func (s *FileStore) Lookup(id string) (Product, error) {
	products, err := s.List()
	if err != nil {
		return Product{}, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}

func field(record []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func splitVariants(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
