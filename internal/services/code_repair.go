package services

// RepairCode collapses a code that was entered twice in a row ("842842")
// back to its single form. Anything that is not an exact doubling is
// returned unchanged.
func RepairCode(code string) string {
	if len(code) < 2 || len(code)%2 != 0 {
		return code
	}
	half := len(code) / 2
	if code[:half] == code[half:] {
		return code[:half]
	}
	return code
}
