package cv

// Document 是编辑器内存中的完整简历结构，所有分区在归一化后都不为 nil。
type Document struct {
	Template     string         `json:"template"`
	Personal     Personal       `json:"personal"`
	Experience   []Experience   `json:"experience"`
	Education    []Education    `json:"education"`
	Skills       []Skill        `json:"skills"`
	Languages    []Language     `json:"languages"`
	Projects     []Project      `json:"projects"`
	Volunteering []Volunteering `json:"volunteering"`
	Courses      []Course       `json:"courses"`
	Military     []Military     `json:"military"`
	References   []Reference    `json:"references"`
	Hobbies      []Hobby        `json:"hobbies"`
	Links        []Link         `json:"links"`
	GDPR         GDPRConsent    `json:"gdpr"`
	Style        Style          `json:"style"`
}

// Personal 个人信息。Summary 为富文本（HTML）。
type Personal struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Headline       string `json:"headline"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	City           string `json:"city"`
	PostalCode     string `json:"postalCode"`
	Country        string `json:"country"`
	BirthDate      string `json:"birthDate"`
	Nationality    string `json:"nationality"`
	DrivingLicense string `json:"drivingLicense"`
	Photo          string `json:"photo"` // MinIO object key
	Summary        string `json:"summary"`
}

// YearMonth is a partial date; zero fields are unset. A month is only
// meaningful once a year is present.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// IsZero reports whether no part of the date is set.
func (d YearMonth) IsZero() bool {
	return d.Year == 0 && d.Month == 0
}

type Experience struct {
	Title       string    `json:"title"`
	Employer    string    `json:"employer"`
	City        string    `json:"city"`
	Start       YearMonth `json:"start"`
	End         YearMonth `json:"end"`
	Current     bool      `json:"current"`
	Description string    `json:"description"`
}

type Education struct {
	Degree      string    `json:"degree"`
	School      string    `json:"school"`
	City        string    `json:"city"`
	Start       YearMonth `json:"start"`
	End         YearMonth `json:"end"`
	Current     bool      `json:"current"`
	Description string    `json:"description"`
}

type Skill struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

type Language struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

type Project struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Start       YearMonth `json:"start"`
	End         YearMonth `json:"end"`
	Description string    `json:"description"`
}

type Volunteering struct {
	Role         string    `json:"role"`
	Organization string    `json:"organization"`
	City         string    `json:"city"`
	Start        YearMonth `json:"start"`
	End          YearMonth `json:"end"`
	Description  string    `json:"description"`
}

type Course struct {
	Name        string    `json:"name"`
	Institution string    `json:"institution"`
	Start       YearMonth `json:"start"`
	End         YearMonth `json:"end"`
	Description string    `json:"description"`
}

type Military struct {
	Rank        string    `json:"rank"`
	Unit        string    `json:"unit"`
	Start       YearMonth `json:"start"`
	End         YearMonth `json:"end"`
	Description string    `json:"description"`
}

type Reference struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

type Hobby struct {
	Name string `json:"name"`
}

type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// GDPRConsent 是简历末尾的数据处理授权声明。
type GDPRConsent struct {
	Enabled bool   `json:"enabled"`
	Text    string `json:"text"`
}

// Style 全局样式设置。
type Style struct {
	AccentColor string  `json:"accentColor"`
	FontFamily  string  `json:"fontFamily"`
	LineSpacing float64 `json:"lineSpacing"`
}

// 分区名称，顺序即渲染顺序。
const (
	SectionExperience   = "experience"
	SectionEducation    = "education"
	SectionSkills       = "skills"
	SectionLanguages    = "languages"
	SectionProjects     = "projects"
	SectionVolunteering = "volunteering"
	SectionCourses      = "courses"
	SectionMilitary     = "military"
	SectionReferences   = "references"
	SectionHobbies      = "hobbies"
	SectionLinks        = "links"
)

// Sections lists every ordered section key of a Document.
var Sections = []string{
	SectionExperience,
	SectionEducation,
	SectionSkills,
	SectionLanguages,
	SectionProjects,
	SectionVolunteering,
	SectionCourses,
	SectionMilitary,
	SectionReferences,
	SectionHobbies,
	SectionLinks,
}

// zeroItem 返回分区新条目的零值，用于按下标追加。
func zeroItem(section string) (any, bool) {
	switch section {
	case SectionExperience:
		return Experience{}, true
	case SectionEducation:
		return Education{}, true
	case SectionSkills:
		return Skill{}, true
	case SectionLanguages:
		return Language{}, true
	case SectionProjects:
		return Project{}, true
	case SectionVolunteering:
		return Volunteering{}, true
	case SectionCourses:
		return Course{}, true
	case SectionMilitary:
		return Military{}, true
	case SectionReferences:
		return Reference{}, true
	case SectionHobbies:
		return Hobby{}, true
	case SectionLinks:
		return Link{}, true
	default:
		return nil, false
	}
}

// SectionLen returns the number of entries in the named section.
func (d Document) SectionLen(section string) int {
	switch section {
	case SectionExperience:
		return len(d.Experience)
	case SectionEducation:
		return len(d.Education)
	case SectionSkills:
		return len(d.Skills)
	case SectionLanguages:
		return len(d.Languages)
	case SectionProjects:
		return len(d.Projects)
	case SectionVolunteering:
		return len(d.Volunteering)
	case SectionCourses:
		return len(d.Courses)
	case SectionMilitary:
		return len(d.Military)
	case SectionReferences:
		return len(d.References)
	case SectionHobbies:
		return len(d.Hobbies)
	case SectionLinks:
		return len(d.Links)
	default:
		return 0
	}
}
