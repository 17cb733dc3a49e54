// Package resume holds the content rendered on the resume page.
package resume

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Section ids in page order. Each one is a reveal region.
const (
	SectionContact    = "contact"
	SectionSkills     = "skills"
	SectionEducation  = "education"
	SectionHeader     = "header"
	SectionProfile    = "profile"
	SectionExperience = "experience"
	SectionFooter     = "footer"
)

var sections = []string{
	SectionContact,
	SectionSkills,
	SectionEducation,
	SectionHeader,
	SectionProfile,
	SectionExperience,
	SectionFooter,
}

// Sections returns the region ids of the page in render order.
func Sections() []string {
	out := make([]string, len(sections))
	copy(out, sections)
	return out
}

// IsSection reports whether id names a page section.
func IsSection(id string) bool {
	for _, s := range sections {
		if s == id {
			return true
		}
	}
	return false
}

type Resume struct {
	Name       string       `yaml:"name"       json:"name"`
	Title      string       `yaml:"title"      json:"title"`
	Tagline    string       `yaml:"tagline"    json:"tagline,omitempty"`
	Photo      string       `yaml:"photo"      json:"photo,omitempty"`
	Summary    string       `yaml:"summary"    json:"summary,omitempty"`
	Contact    Contact      `yaml:"contact"    json:"contact"`
	Skills     []Skill      `yaml:"skills"     json:"skills"`
	Education  []Education  `yaml:"education"  json:"education"`
	Experience []Experience `yaml:"experience" json:"experience"`
	Copyright  string       `yaml:"copyright"  json:"copyright,omitempty"`
	Share      Share        `yaml:"share"      json:"share"`
	Export     Export       `yaml:"export"     json:"export"`
}

type Contact struct {
	Phone    string `yaml:"phone"    json:"phone,omitempty"`
	Email    string `yaml:"email"    json:"email,omitempty"`
	Location string `yaml:"location" json:"location,omitempty"`
}

// Skill is a named proficiency in percent.
type Skill struct {
	Name  string `yaml:"name"  json:"name"`
	Level int    `yaml:"level" json:"level"`
}

type Education struct {
	Institution string `yaml:"institution" json:"institution"`
	Degree      string `yaml:"degree"      json:"degree,omitempty"`
	Major       string `yaml:"major"       json:"major,omitempty"`
	Period      string `yaml:"period"      json:"period"`
}

type Experience struct {
	Title       string `yaml:"title"       json:"title"`
	Company     string `yaml:"company"     json:"company"`
	Period      string `yaml:"period"      json:"period"`
	Description string `yaml:"description" json:"description,omitempty"`
	Current     bool   `yaml:"current"     json:"current,omitempty"`
}

// Share is the text offered to the host share capability.
type Share struct {
	Title string `yaml:"title" json:"title"`
	Text  string `yaml:"text"  json:"text"`
}

type Export struct {
	Filename string `yaml:"filename" json:"filename"`
}

// Default returns the built-in resume.
func Default() (*Resume, error) {
	return Parse(defaultYAML)
}

// Load reads a resume from a YAML file.
func Load(path string) (*Resume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resume %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML resume content.
func Parse(data []byte) (*Resume, error) {
	var r Resume
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse resume: %w", err)
	}
	r.applyDefaults()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Resume) applyDefaults() {
	if r.Share.Title == "" && r.Name != "" {
		r.Share.Title = r.Name + "' Resume"
		if !strings.HasSuffix(r.Name, "s") {
			r.Share.Title = r.Name + "'s Resume"
		}
	}
	if r.Share.Text == "" && r.Name != "" {
		r.Share.Text = "Check out " + r.Name + "'s resume."
	}
	if r.Export.Filename == "" && r.Name != "" {
		r.Export.Filename = strings.ReplaceAll(r.Name, " ", "_") + "_Resume.pdf"
	}
}

// Validate checks required fields and skill ranges.
func (r *Resume) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	for i, s := range r.Skills {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("skills[%d]: name is required", i))
		}
		if s.Level < 0 || s.Level > 100 {
			errs = append(errs, fmt.Errorf("skills[%d] %q: level %d outside 0-100", i, s.Name, s.Level))
		}
	}
	for i, e := range r.Education {
		if e.Institution == "" {
			errs = append(errs, fmt.Errorf("education[%d]: institution is required", i))
		}
	}
	for i, e := range r.Experience {
		if e.Title == "" {
			errs = append(errs, fmt.Errorf("experience[%d]: title is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid resume: %w", errors.Join(errs...))
	}
	return nil
}
