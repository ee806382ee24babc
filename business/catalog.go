// Package business is the static catalog of business modules shipped with
// the binary. New modules are added to Catalog explicitly.
package business

import (
	"github.com/DJune12138/Collection3/business/demo/demo1"
	"github.com/DJune12138/Collection3/business/demo/demo2"
	"github.com/DJune12138/Collection3/business/demo/demo3"
	"github.com/DJune12138/Collection3/internal/app/registry"
)

// Catalog returns a fresh catalog holding every shipped module.
func Catalog() *registry.Catalog {
	c := registry.NewCatalog()
	c.MustRegister("demo", demo1.Name, demo1.Descriptor())
	c.MustRegister("demo", demo2.Name, demo2.Descriptor())
	c.MustRegister("demo", demo3.Name, demo3.Descriptor())
	return c
}
