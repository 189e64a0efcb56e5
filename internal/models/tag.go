package models

// Tag is a short labeled keyword derived from the user's free text.
type Tag struct {
	// Label is the keyword itself. Never empty in a normalized tag set.
	Label string

	// Description is a short explanation of the tag; may be empty.
	Description string
}

// Labels returns the labels of tags in order.
func Labels(tags []Tag) []string {
	labels := make([]string, len(tags))
	for i, t := range tags {
		labels[i] = t.Label
	}
	return labels
}
