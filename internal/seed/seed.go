// Package seed loads the system degree catalogue and bootstraps the first superadmin.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
)

const defaultSemestersPerYear = 2

// DegreeEntry is one degree in the catalogue file.
type DegreeEntry struct {
	Name             string          `yaml:"name"`
	TotalYears       int             `yaml:"total_years"`
	SemestersPerYear int             `yaml:"semesters_per_year"`
	Templates        []TemplateEntry `yaml:"templates"`
}

// TemplateEntry is a subject copied to users who select the degree.
type TemplateEntry struct {
	SubjectName string  `yaml:"subject_name"`
	Credits     float64 `yaml:"credits"`
	Year        int     `yaml:"year"`
	Semester    int     `yaml:"semester"`
}

// Catalogue is the parsed seed file.
type Catalogue struct {
	Degrees []DegreeEntry `yaml:"degrees"`
}

// SuperAdmin describes the bootstrap account. An empty email skips it.
type SuperAdmin struct {
	Email    string
	Username string
	Password string
}

type degreeStore interface {
	FindSystemByName(ctx context.Context, name string) (*models.Degree, error)
	Create(ctx context.Context, degree *models.Degree) error
	CreateTemplate(ctx context.Context, tpl *models.DegreeSubjectTemplate) error
}

type userStore interface {
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error)
	Create(ctx context.Context, user *models.User) error
}

// Result counts what a run changed.
type Result struct {
	DegreesCreated int
	DegreesSkipped int
	AdminCreated   bool
}

// Seeder applies a catalogue idempotently.
type Seeder struct {
	degrees degreeStore
	users   userStore
	logger  *zap.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(degrees degreeStore, users userStore, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{degrees: degrees, users: users, logger: logger}
}

// LoadFile parses a YAML catalogue from path.
func LoadFile(path string) (*Catalogue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a YAML catalogue.
func Parse(r io.Reader) (*Catalogue, error) {
	var cat Catalogue
	if err := yaml.NewDecoder(r).Decode(&cat); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	seen := make(map[string]struct{}, len(cat.Degrees))
	for i := range cat.Degrees {
		d := &cat.Degrees[i]
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return nil, fmt.Errorf("degree %d: name is required", i+1)
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("degree %q listed twice", d.Name)
		}
		seen[d.Name] = struct{}{}
		if d.TotalYears < 1 || d.TotalYears > 10 {
			return nil, fmt.Errorf("degree %q: total_years must be between 1 and 10", d.Name)
		}
		if d.SemestersPerYear == 0 {
			d.SemestersPerYear = defaultSemestersPerYear
		}
		if d.SemestersPerYear < 1 || d.SemestersPerYear > 4 {
			return nil, fmt.Errorf("degree %q: semesters_per_year must be between 1 and 4", d.Name)
		}
		for _, tpl := range d.Templates {
			if strings.TrimSpace(tpl.SubjectName) == "" || tpl.Credits <= 0 {
				return nil, fmt.Errorf("degree %q: template needs a subject name and credits", d.Name)
			}
			if c := decimal.NewFromFloat(tpl.Credits); !c.Equal(c.Truncate(1)) {
				return nil, fmt.Errorf("degree %q: template %q credits allow one decimal place", d.Name, tpl.SubjectName)
			}
			if tpl.Year < 1 || tpl.Year > d.TotalYears || tpl.Semester < 1 || tpl.Semester > d.SemestersPerYear {
				return nil, fmt.Errorf("degree %q: template %q is outside the degree", d.Name, tpl.SubjectName)
			}
		}
	}
	return &cat, nil
}

// Run creates missing degrees and, when configured, the superadmin account.
func (s *Seeder) Run(ctx context.Context, cat *Catalogue, admin SuperAdmin) (*Result, error) {
	res := &Result{}
	for _, entry := range cat.Degrees {
		created, err := s.ensureDegree(ctx, entry)
		if err != nil {
			return res, err
		}
		if created {
			res.DegreesCreated++
		} else {
			res.DegreesSkipped++
		}
	}

	if admin.Email != "" {
		created, err := s.ensureSuperAdmin(ctx, admin)
		if err != nil {
			return res, err
		}
		res.AdminCreated = created
	}
	return res, nil
}

func (s *Seeder) ensureDegree(ctx context.Context, entry DegreeEntry) (bool, error) {
	_, err := s.degrees.FindSystemByName(ctx, entry.Name)
	if err == nil {
		s.logger.Info("degree exists", zap.String("name", entry.Name))
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	degree := &models.Degree{Name: entry.Name, TotalYears: entry.TotalYears, SemestersPerYear: entry.SemestersPerYear}
	if err := s.degrees.Create(ctx, degree); err != nil {
		return false, err
	}
	for _, t := range entry.Templates {
		tpl := &models.DegreeSubjectTemplate{
			DegreeID:    degree.ID,
			SubjectName: strings.TrimSpace(t.SubjectName),
			Credits:     t.Credits,
			Year:        t.Year,
			Semester:    t.Semester,
		}
		if err := s.degrees.CreateTemplate(ctx, tpl); err != nil {
			return false, err
		}
	}
	s.logger.Info("degree created", zap.String("name", entry.Name), zap.Int("templates", len(entry.Templates)))
	return true, nil
}

func (s *Seeder) ensureSuperAdmin(ctx context.Context, admin SuperAdmin) (bool, error) {
	email := strings.ToLower(strings.TrimSpace(admin.Email))
	username := strings.TrimSpace(admin.Username)
	if username == "" {
		username = "superadmin"
	}
	if len(admin.Password) < 6 {
		return false, fmt.Errorf("superadmin password must be at least 6 characters")
	}

	exists, err := s.users.ExistsByEmailOrUsername(ctx, email, username)
	if err != nil {
		return false, err
	}
	if exists {
		s.logger.Info("superadmin exists", zap.String("email", email))
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash superadmin password: %w", err)
	}
	user := &models.User{
		Name:         "Super Admin",
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleSuperAdmin,
		IsVerified:   true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return false, err
	}
	s.logger.Info("superadmin created", zap.String("email", email))
	return true, nil
}
