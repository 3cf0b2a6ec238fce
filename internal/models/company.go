package models

// Company is the operator the agent speaks for.
type Company struct {
	Name     string `json:"name" yaml:"name"`
	Phone    string `json:"phone" yaml:"phone"`
	Email    string `json:"email" yaml:"email"`
	Hours    string `json:"hours" yaml:"hours"`
	Offices  string `json:"offices,omitempty" yaml:"offices,omitempty"`
	Services string `json:"services,omitempty" yaml:"services,omitempty"`
	Pricing  string `json:"pricing,omitempty" yaml:"pricing,omitempty"`
}

// DefaultCompany returns the built-in company profile.
func DefaultCompany() Company {
	return Company{
		Name:     "Vallhamragruppen",
		Phone:    "0793-006638",
		Email:    "info@vallhamragruppen.se",
		Hours:    "Mån-Fre 08:00-17:00",
		Offices:  "Johanneberg, Partille och Mölndal",
		Services: "Fastighetsförvaltning för bostadsrättsföreningar och kommersiella fastigheter: drift och underhåll, ekonomisk förvaltning, hyresadministration och projektledning.",
		Pricing:  "Prissättning sker individuellt baserat på fastighetens storlek och omfattning av tjänster. Kontakta oss för offert.",
	}
}

// Contact returns "phone eller email" for reply templates.
func (c Company) Contact() string {
	switch {
	case c.Phone != "" && c.Email != "":
		return c.Phone + " eller " + c.Email
	case c.Phone != "":
		return c.Phone
	}
	return c.Email
}
