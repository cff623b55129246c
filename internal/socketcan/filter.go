package socketcan

const (
	// IDOffset is OR-ed into every subscribed ID: IDs 0x01 and 0x02 admit
	// 0x05 and 0x07.
	IDOffset uint32 = 0x05
	// FilterMask makes every filter an exact match on the low 16 bits.
	FilterMask uint32 = 0xFFFF
)

// Filter is one kernel receive rule (struct can_filter).
type Filter struct {
	ID   uint32
	Mask uint32
}

// Match reports whether the kernel would admit a frame with the given can_id.
func (f Filter) Match(canID uint32) bool { return canID&f.Mask == f.ID&f.Mask }

// FiltersFor builds one exact-match filter per subscribed ID. Duplicates are kept;
// the kernel treats them as the same rule.
func FiltersFor(ids []uint32) []Filter {
	fs := make([]Filter, 0, len(ids))
	for _, id := range ids {
		fs = append(fs, Filter{ID: id | IDOffset, Mask: FilterMask})
	}
	return fs
}

// MatchAny reports whether any filter admits canID.
func MatchAny(fs []Filter, canID uint32) bool {
	for _, f := range fs {
		if f.Match(canID) {
			return true
		}
	}
	return false
}
