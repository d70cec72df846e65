package registry

import "github.com/warp/rental-engine/booking"

// AccessController holds the administrator identity fixed at construction.
type AccessController struct {
	admin booking.Address
}

func NewAccessController(admin booking.Address) AccessController {
	return AccessController{admin: booking.NewAddress(admin.String())}
}

func (a AccessController) Admin() booking.Address { return a.admin }

// IsAdmin reports whether addr is the administrator. A zero administrator
// matches nobody.
func (a AccessController) IsAdmin(addr booking.Address) bool {
	if a.admin.IsZero() {
		return false
	}
	return booking.NewAddress(addr.String()) == a.admin
}
