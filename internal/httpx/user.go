package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
)

// Authentication lives in front of this service; the gateway forwards the
// verified identity in headers.
func currentUser(r *http.Request) (checkout.User, bool) {
	id := r.Header.Get("X-User-Id")
	if id == "" {
		return checkout.User{}, false
	}
	return checkout.User{ID: id, Name: r.Header.Get("X-User-Name")}, true
}
