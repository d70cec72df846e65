package registry_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/warp/rental-engine/booking"
	"github.com/warp/rental-engine/registry"
)

func TestProperty_CountersMatchOwnership(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("balances and shop lists agree with product owners", prop.ForAll(
		func(owners []uint8, categories []uint8) bool {
			reg := registry.New(registry.Config{})
			ctx := context.Background()

			expected := map[booking.Address][]uint64{}
			var next uint64
			for i, o := range owners {
				owner := booking.Address(fmt.Sprintf("0xshop%d", o))
				rc, err := reg.RegisterProduct(ctx, owner, "item", registry.Category(categories[i]))
				if categories[i] > uint8(registry.MaxCategory) {
					if err == nil {
						return false
					}
					continue
				}
				if err != nil || rc.ID != next {
					return false
				}
				expected[owner] = append(expected[owner], next)
				next++
			}

			if reg.ProductsCount() != next {
				return false
			}
			for owner, ids := range expected {
				bal, err := reg.BalanceOf(owner)
				if err != nil || bal != uint64(len(ids)) {
					return false
				}
				got, err := reg.ProductsByShop(owner)
				if err != nil || fmt.Sprint(got) != fmt.Sprint(ids) {
					return false
				}
				for _, id := range ids {
					if o, err := reg.OwnerOf(id); err != nil || o != owner {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(30, gen.UInt8Range(0, 4)),
		gen.SliceOfN(30, gen.UInt8Range(0, 7)),
	))

	properties.TestingRun(t)
}
