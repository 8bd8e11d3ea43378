package keys

import (
	"bytes"
)

// All returns a new key range matching all keys
func All() Range {
	return Range{}
}

// Range represents all keys such that
//   k >= Min and k < Max
// If Min = nil that indicates the start of all keys
// If Max = nil that indicatese the end of all keys
// If multiple modifiers are called on a range the end
// result is effectively the same as ANDing all the
// restrictions.
type Range struct {
	Min []byte
	Max []byte
	ns  []byte
}

// Eq confines the range to just key k
func (r Range) Eq(k []byte) Range {
	return r.Gte(k).Lte(k)
}

// Gt confines the range to keys that are
// greater than k
func (r Range) Gt(k []byte) Range {
	return r.refineMin(after(k))
}

// Gte confines the range to keys that are
// greater than or equal to k
func (r Range) Gte(k []byte) Range {
	return r.refineMin(k)
}

// Lt confines the range to keys that are
// less than k
func (r Range) Lt(k []byte) Range {
	return r.refineMax(k)
}

// Lte confines the range to keys that are
// less than or equal to k
func (r Range) Lte(k []byte) Range {
	return r.refineMax(after(k))
}

// Prefix confines the range to keys that
// have the prefix k, excluding k itself
func (r Range) Prefix(k []byte) Range {
	r = r.Gt(k)

	if max := inc(k); max != nil {
		r = r.Lt(max)
	}

	return r
}

// Namespace namespaces keys in the range with
// to keys with the prefix ns. Subsequent modifier
// methods will keep keys within this namespace.
func (r Range) Namespace(ns []byte) Range {
	r.Min = prefix(r.Min, ns)

	if r.Max == nil {
		r.Max = inc(prefix(r.ns, ns))
	} else {
		r.Max = prefix(r.Max, ns)
	}

	r.ns = prefix(r.ns, ns)

	return r
}

// Empty returns true if no key can fall inside
// the range
func (r Range) Empty() bool {
	return r.Max != nil && compare(r.Min, r.Max) >= 0
}

// Contains returns true if k falls inside the range
func (r Range) Contains(k []byte) bool {
	if r.Min != nil && bytes.Compare(k, r.Min) < 0 {
		return false
	}

	if r.Max != nil && bytes.Compare(k, r.Max) >= 0 {
		return false
	}

	return true
}

func (r Range) refineMin(min []byte) Range {
	if len(r.ns) > 0 {
		min = prefix(min, r.ns)
	}

	if compare(min, r.Min) <= 0 {
		return r
	}

	r.Min = min

	return r
}

func (r Range) refineMax(max []byte) Range {
	if len(r.ns) > 0 {
		max = prefix(max, r.ns)
	}

	if r.Max != nil && compare(max, r.Max) >= 0 {
		return r
	}

	r.Max = max

	return r
}

func compare(a []byte, b []byte) int {
	if a == nil {
		if b == nil {
			return 0
		}

		return -1
	}

	if b == nil {
		return 1
	}

	return bytes.Compare(a, b)
}

// after returns the key directly after k such that
// there can exist no other key that comes between
// k and after(k)
func after(k []byte) []byte {
	afterK := make([]byte, len(k)+1)

	copy(afterK, k)
	afterK[len(k)] = 0

	return afterK
}

// inc treats k as a big-endian unsigned integer
// and adds 1 to it, dropping trailing 0xff bytes
// so that the result is the first key that does
// not have k as a prefix.
func inc(k []byte) []byte {
	end := len(k)

	for end > 0 && k[end-1] == 0xff {
		end--
	}

	// every byte of k was 0xff. The range should just go
	// all the way to the end of the real key range.
	if end == 0 {
		return nil
	}

	result := make([]byte, end)
	copy(result, k[:end])
	result[end-1]++

	return result
}

// prefix appends k to p
func prefix(k []byte, p []byte) []byte {
	if len(k) == 0 && len(p) == 0 {
		return k
	}

	prefixedK := make([]byte, 0, len(p)+len(k))
	prefixedK = append(prefixedK, p...)
	prefixedK = append(prefixedK, k...)

	return prefixedK
}
