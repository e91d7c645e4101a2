package config

import (
	"fmt"

	"github.com/kilianp07/haulage/core/model"
)

// SeedConfig lists reference data loaded at startup. Customers, trucks and
// users are owned by other systems; the dispatch core only reads them.
type SeedConfig struct {
	Customers []model.Customer `json:"customers"`
	Trucks    []model.Truck    `json:"trucks"`
	Users     []model.User     `json:"users"`
}

// Validate rejects duplicate or empty ids.
func (c SeedConfig) Validate() error {
	if err := uniqueIDs("customer", len(c.Customers), func(i int) string { return c.Customers[i].ID }); err != nil {
		return err
	}
	if err := uniqueIDs("truck", len(c.Trucks), func(i int) string { return c.Trucks[i].ID }); err != nil {
		return err
	}
	return uniqueIDs("user", len(c.Users), func(i int) string { return c.Users[i].ID })
}

func uniqueIDs(kind string, n int, id func(int) string) error {
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		v := id(i)
		if v == "" {
			return fmt.Errorf("%s %d has no id", kind, i)
		}
		if seen[v] {
			return fmt.Errorf("duplicate %s id %s", kind, v)
		}
		seen[v] = true
	}
	return nil
}
