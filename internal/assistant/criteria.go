package assistant

import (
	"fmt"
	"strings"
)

// Criteria is what a user message says about the job they are after. Empty
// fields were not mentioned.
type Criteria struct {
	JobType       string `json:"job_type,omitempty"`
	Qualification string `json:"qualification,omitempty"`
	Experience    string `json:"experience,omitempty"`
	District      string `json:"district,omitempty"`
	Keywords      string `json:"keywords,omitempty"`
}

// Empty reports whether nothing was recognised.
func (c Criteria) Empty() bool {
	return c == Criteria{}
}

func (c Criteria) String() string {
	var parts []string
	add := func(label, v string) {
		if v != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", label, v))
		}
	}
	add("job type", c.JobType)
	add("qualification", c.Qualification)
	add("experience", c.Experience)
	add("district", c.District)
	add("role", c.Keywords)
	if len(parts) == 0 {
		return "general inquiry"
	}
	return strings.Join(parts, ", ")
}

var districts = []string{
	"amritsar", "ludhiana", "jalandhar", "patiala", "bathinda",
	"moga", "sangrur", "kapurthala", "hoshiarpur", "gurdaspur",
	"ropar", "mohali", "fatehgarh sahib", "muktsar", "mansa",
	"barnala", "faridkot", "ferozepur", "pathankot", "tarn taran",
	"fazilka", "malerkotla", "nawanshahr", "rupnagar",
}

var roles = []string{
	"clerk", "accountant", "assistant", "engineer", "developer",
	"teacher", "nurse", "operator", "data entry",
}

// ExtractCriteria recognises job type, qualification, experience band,
// Punjab district and role keywords in msg.
func ExtractCriteria(msg string) Criteria {
	m := strings.ToLower(msg)
	var c Criteria

	switch {
	case containsAny(m, "government", "govt", "gov "):
		c.JobType = "Government"
	case containsAny(m, "private", "company", "corporate"):
		c.JobType = "Private"
	}

	switch {
	case containsAny(m, "12th", "twelfth", "high school"):
		c.Qualification = "12th Pass"
	case containsAny(m, "post graduate", "postgraduate", "master", "mba", "phd"):
		c.Qualification = "Post Graduate"
	case containsAny(m, "graduate", "bachelor", "degree"):
		c.Qualification = "Graduate"
	}

	switch {
	case containsAny(m, "less than 2", "under 2", "0 to 2", "0-2", "fresher", "entry level", "no experience"):
		c.Experience = "0-2 years"
	case containsAny(m, "2-5", "2 to 5", "experienced"):
		c.Experience = "2-5 years"
	case containsAny(m, "5-10", "5 to 10", "senior"):
		c.Experience = "5-10 years"
	case containsAny(m, "10+", "10 plus", "more than 10", "expert"):
		c.Experience = "10+ years"
	}

	for _, kw := range roles {
		if strings.Contains(m, kw) {
			c.Keywords = kw
			break
		}
	}
	for _, d := range districts {
		if strings.Contains(m, d) {
			c.District = titleCase(d)
			break
		}
	}
	return c
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
