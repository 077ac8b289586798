package shopkit

import (
	"regexp"
	"strings"
)

// shopNameRe matches the name label of a shop domain. The full domain is
// the label plus the configured suffix.
var shopNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*$`)

// SanitizeShop normalizes a user-supplied shop parameter into a full shop
// domain, or returns ErrInvalidShop. Accepted inputs: a bare shop name
// ("demo"), a full domain ("demo.harborshop.com"), or either form with an
// https:// prefix. Anything pointing outside the configured suffix is
// rejected before it can end up in a redirect.
func (a *App) SanitizeShop(shop string) (string, error) {
	shop = strings.TrimSpace(strings.ToLower(shop))
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	shop = strings.TrimSuffix(shop, "/")
	if shop == "" {
		return "", ErrInvalidShop
	}

	suffix := "." + a.cfg.ShopSuffix

	name := shop
	if strings.Contains(shop, ".") {
		var ok bool
		name, ok = strings.CutSuffix(shop, suffix)
		if !ok {
			return "", ErrInvalidShop
		}
	}

	if !shopNameRe.MatchString(name) {
		return "", ErrInvalidShop
	}

	return name + suffix, nil
}

// ValidShopHost reports whether host is a well-formed shop domain under
// the configured suffix. Used by the session token verifier.
func (a *App) ValidShopHost(host string) bool {
	name, ok := strings.CutSuffix(strings.ToLower(host), "."+a.cfg.ShopSuffix)
	if !ok {
		return false
	}
	return shopNameRe.MatchString(name)
}
