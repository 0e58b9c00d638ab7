// Package catalog holds the fixed set of topic categories that persona
// questions are drawn from.
package catalog

// Category is a topic the engine can probe.
type Category struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var categories = []Category{
	{Name: "Likes & Dislikes", Description: "tastes in activities or food"},
	{Name: "Politics & Society", Description: "political and social outlook"},
	{Name: "Geography & Climate", Description: "preferred places and weather"},
	{Name: "Energy & Routine", Description: "daily energy and lifestyle"},
	{Name: "Aspirations & Goals", Description: "career or life ambitions"},
	{Name: "Psychological Traits", Description: "thinking patterns and behaviour"},
	{Name: "Culture & Arts", Description: "music, media and art interests"},
	{Name: "Relationships & Community", Description: "friendships and social ties"},
	{Name: "Work & Productivity", Description: "discipline and work style"},
	{Name: "Decision Making & Values", Description: "how choices and priorities form"},
	{Name: "Emotions & Coping", Description: "responses to stress or loss"},
	{Name: "Technology & Innovation", Description: "attitude toward new tech"},
	{Name: "Spare Time & Hobbies", Description: "weekend and leisure pursuits"},
	{Name: "Financial Outlook", Description: "saving, spending or investing"},
	{Name: "Travel & Adventure", Description: "motivation for exploring new places"},
}

// byName indexes categories by name.
var byName = func() map[string]Category {
	m := make(map[string]Category, len(categories))
	for _, c := range categories {
		m[c.Name] = c
	}
	return m
}()

// All returns the catalog in display order. The slice is a fresh copy.
func All() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Lookup returns the category with the given name.
func Lookup(name string) (Category, bool) {
	c, ok := byName[name]
	return c, ok
}
