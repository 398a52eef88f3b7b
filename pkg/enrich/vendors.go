package enrich

// UnknownVendor is the name of every vendor code outside the known set.
const UnknownVendor = "Unknown"

// VendorNames is a closed vendor code mapping with a fallback name.
type VendorNames struct {
	names    map[int64]string
	fallback string
}

func DefaultVendorNames() VendorNames {
	return NewVendorNames(map[int64]string{
		1: "Creative Mobile Technologies, LLC",
		2: "VeriFone Inc.",
	}, UnknownVendor)
}

func NewVendorNames(names map[int64]string, fallback string) VendorNames {
	copied := make(map[int64]string, len(names))
	for k, v := range names {
		copied[k] = v
	}
	if fallback == "" {
		fallback = UnknownVendor
	}

	return VendorNames{names: copied, fallback: fallback}
}

// Name never returns an empty string for a configured mapping.
func (v VendorNames) Name(code int64) string {
	if name, ok := v.names[code]; ok {
		return name
	}
	if v.fallback == "" {
		return UnknownVendor
	}
	return v.fallback
}

func (v VendorNames) Len() int {
	return len(v.names)
}

// WithFallback returns a copy of the mapping that names unknown codes as given.
func (v VendorNames) WithFallback(fallback string) VendorNames {
	return NewVendorNames(v.names, fallback)
}
