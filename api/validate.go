package api

import "fmt"

//ValidateString returns an error if the given value is not within the parameters
func ValidateString(field, value string, max int) error {
	if value == "" {
		return fmt.Errorf("%s must not be empty", field)
	} else if len(value) > max {
		return fmt.Errorf("%s length (%d) was more than maximum allowed (%d)", field, len(value), max)
	}
	return nil
}

//ValidateOneOf returns an error if value is not one of the allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s (%s) must be one of %v", field, value, allowed)
}

//ValidateRange returns an error if value is outside of [min, max]
func ValidateRange(field string, value, min, max float64) error {
	if value < min || value > max {
		return fmt.Errorf("%s (%v) must be between %v and %v", field, value, min, max)
	}
	return nil
}
