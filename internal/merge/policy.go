package merge

import "unicode/utf8"

// DescriptionPolicy picks the description kept when a draft is merged into an event.
type DescriptionPolicy func(current, incoming string) string

// LongerDescription keeps whichever description has more characters.
// Ties keep the current description.
func LongerDescription(current, incoming string) string {
	if utf8.RuneCountInString(incoming) > utf8.RuneCountInString(current) {
		return incoming
	}
	return current
}
