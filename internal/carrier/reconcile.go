package carrier

import "shippingrates/internal/pricing"

// ReconcileAllowedMethods merges the administrator's method restriction with
// what the carrier itself declares. Unknown values are dropped from both
// lists. An empty administrator list means "not restricted yet" and lets every
// declared method through; it must not be read as "nothing allowed".
// The result keeps the carrier's ordering.
func ReconcileAllowedMethods(admin, declared []pricing.Method, valid map[pricing.Method]struct{}) []pricing.Method {
	filtered := filterValid(declared, valid)
	if len(admin) == 0 {
		return filtered
	}
	allowed := make(map[pricing.Method]struct{}, len(admin))
	for _, m := range filterValid(admin, valid) {
		allowed[m] = struct{}{}
	}
	out := make([]pricing.Method, 0, len(filtered))
	for _, m := range filtered {
		if _, ok := allowed[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

func filterValid(methods []pricing.Method, valid map[pricing.Method]struct{}) []pricing.Method {
	out := make([]pricing.Method, 0, len(methods))
	for _, m := range methods {
		if _, ok := valid[m]; ok {
			out = append(out, m)
		}
	}
	return out
}
