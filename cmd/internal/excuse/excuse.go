package excuse

import "strings"

// Excuse is one record of the list. The JSON shape matches the data file.
type Excuse struct {
	ID   int    `json:"id"`
	Text string `json:"excuse"`
}

// Defaults returns the seed records written when no data file exists.
func Defaults() []Excuse {
	return []Excuse{
		{ID: 1, Text: "My Wi-Fi was down because my neighbor’s cat unplugged it."},
		{ID: 2, Text: "I couldn’t come to the meeting, I was busy fighting a goose."},
		{ID: 3, Text: "My alarm clock joined a protest and refused to go off."},
		{ID: 4, Text: "Traffic was bad because a llama parade blocked the road."},
		{ID: 5, Text: "I accidentally glued myself to my desk chair."},
	}
}

// NextID returns max(existing ids)+1, or 1 for an empty list.
//
// Only the current maximum is considered: deleting the highest record and
// adding a new one hands its id out again.
func NextID(items []Excuse) int {
	max := 0
	for _, e := range items {
		if e.ID > max {
			max = e.ID
		}
	}
	return max + 1
}

// NormalizeText trims surrounding whitespace and rejects empty results.
func NormalizeText(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", ErrEmptyText
	}
	return t, nil
}

func indexOf(items []Excuse, id int) int {
	for i, e := range items {
		if e.ID == id {
			return i
		}
	}
	return -1
}
