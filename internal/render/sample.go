package render

import "cvStudio/internal/cv"

// SampleDocument 返回用于模板缩略图的示例简历，每次调用都返回新副本。
func SampleDocument(templateKey string) cv.Document {
	doc := cv.Empty(templateKey)
	doc.Personal = cv.Personal{
		FirstName: "Alex",
		LastName:  "Morgan",
		Headline:  "Product Engineer",
		Email:     "alex.morgan@example.com",
		Phone:     "+49 30 1234567",
		City:      "Berlin",
		Country:   "Germany",
		Summary:   "<p>Engineer with eight years of experience shipping <b>web products</b> end to end.</p>",
	}
	doc.Experience = []cv.Experience{
		{
			Title:       "Senior Engineer",
			Employer:    "Northwind",
			City:        "Berlin",
			Start:       cv.YearMonth{Year: 2021, Month: 3},
			Current:     true,
			Description: "<ul><li>Led the billing platform rewrite</li><li>Mentored four engineers</li></ul>",
		},
		{
			Title:       "Software Engineer",
			Employer:    "Contoso",
			City:        "Hamburg",
			Start:       cv.YearMonth{Year: 2017, Month: 9},
			End:         cv.YearMonth{Year: 2021, Month: 2},
			Description: "<p>Built internal tooling for logistics teams.</p>",
		},
	}
	doc.Education = []cv.Education{
		{Degree: "B.Sc. Computer Science", School: "TU Berlin", Start: cv.YearMonth{Year: 2013}, End: cv.YearMonth{Year: 2017}},
	}
	doc.Skills = []cv.Skill{{Name: "Go", Level: 5}, {Name: "PostgreSQL", Level: 4}, {Name: "TypeScript", Level: 4}}
	doc.Languages = []cv.Language{{Name: "English", Level: "C2"}, {Name: "German", Level: "B2"}}
	return doc
}
