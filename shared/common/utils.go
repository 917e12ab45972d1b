package common

// Clamp clamps a value between min and max
func Clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Pointer utility functions

// IntPtr returns a pointer to an int
func IntPtr(i int) *int {
	return &i
}

// Float64Ptr returns a pointer to a float64
func Float64Ptr(f float64) *float64 {
	return &f
}

// IntValueOr returns the value of an int pointer or def if nil
func IntValueOr(i *int, def int) int {
	if i == nil {
		return def
	}
	return *i
}

// Float64ValueOr returns the value of a float64 pointer or def if nil
func Float64ValueOr(f *float64, def float64) float64 {
	if f == nil {
		return def
	}
	return *f
}
